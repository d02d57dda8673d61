package handover

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/zeebo/blake3"
)

const codeDigits = 6

var codeSpace = big.NewInt(1_000_000)

// generateCode returns a uniformly random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// digest hashes a code bound to its match, so equal codes on different
// matches have different digests.
func digest(matchID, code string) string {
	sum := blake3.Sum256([]byte(matchID + ":" + code))
	return hex.EncodeToString(sum[:])
}

func codeMatches(matchID, code, want string) bool {
	got := digest(matchID, code)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
