package ledger

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	"github.com/erazemk/najdeno/internal/model"
)

// Facts are the plaintext details of a completed handover. They never leave
// the process; only Hashed does.
type Facts struct {
	MatchID      string
	LostItem     model.Item
	FoundItem    model.Item
	LostOwnerID  int64
	FoundOwnerID int64
	Score        float64
	CompletedAt  time.Time
}

// FactsFromHandover extracts the ledger facts of an archived handover.
func FactsFromHandover(h *model.Handover) Facts {
	return Facts{
		MatchID:      h.MatchID,
		LostItem:     h.LostItemSnapshot,
		FoundItem:    h.FoundItemSnapshot,
		LostOwnerID:  h.LostOwnerID,
		FoundOwnerID: h.FoundOwnerID,
		Score:        h.Score,
		CompletedAt:  h.CompletedAt,
	}
}

// Hashed is what is written to the contract.
type Hashed struct {
	MatchKey    common.Hash
	LostOwner   common.Hash
	FoundOwner  common.Hash
	Details     common.Hash
	CompletedAt uint64
}

type itemDetails struct {
	ID          int64    `cbor:"1,keyasint"`
	Type        string   `cbor:"2,keyasint"`
	Name        string   `cbor:"3,keyasint"`
	Description string   `cbor:"4,keyasint"`
	Tags        []string `cbor:"5,keyasint"`
	Color       string   `cbor:"6,keyasint"`
	Latitude    *int64   `cbor:"7,keyasint,omitempty"`
	Longitude   *int64   `cbor:"8,keyasint,omitempty"`
	OccurredAt  int64    `cbor:"9,keyasint"`
}

type handoverDetails struct {
	MatchID     string      `cbor:"1,keyasint"`
	Lost        itemDetails `cbor:"2,keyasint"`
	Found       itemDetails `cbor:"3,keyasint"`
	Score       int64       `cbor:"4,keyasint"`
	CompletedAt int64       `cbor:"5,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ledger: building CBOR encoder: %v", err))
	}
}

// Hash digests the facts with Keccak-256. The detail blob is encoded as
// deterministic CBOR so equal facts always produce the same digest. Owner
// identities are salted so that small user IDs cannot be enumerated.
func (f Facts) Hash(salt string) (Hashed, error) {
	blob, err := encMode.Marshal(handoverDetails{
		MatchID:     f.MatchID,
		Lost:        details(f.LostItem),
		Found:       details(f.FoundItem),
		Score:       int64(math.Round(f.Score * 100)),
		CompletedAt: f.CompletedAt.UTC().Unix(),
	})
	if err != nil {
		return Hashed{}, fmt.Errorf("encoding handover details: %w", err)
	}

	return Hashed{
		MatchKey:    MatchKey(f.MatchID),
		LostOwner:   ownerHash(salt, f.LostOwnerID),
		FoundOwner:  ownerHash(salt, f.FoundOwnerID),
		Details:     keccak(blob),
		CompletedAt: uint64(f.CompletedAt.UTC().Unix()),
	}, nil
}

// details keeps coordinates as fixed-point microdegrees so the encoding is
// independent of float formatting.
func details(item model.Item) itemDetails {
	d := itemDetails{
		ID:          item.ID,
		Type:        item.Type,
		Name:        item.Name,
		Description: item.Description,
		Tags:        item.Tags,
		Color:       item.Color,
		OccurredAt:  item.OccurredAt.UTC().Unix(),
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if item.Location != nil {
		lat := int64(math.Round(item.Location.Latitude * 1e6))
		lon := int64(math.Round(item.Location.Longitude * 1e6))
		d.Latitude, d.Longitude = &lat, &lon
	}
	return d
}

// MatchKey is the contract key of a match.
func MatchKey(matchID string) common.Hash {
	return keccak([]byte("najdeno:match:" + matchID))
}

func ownerHash(salt string, userID int64) common.Hash {
	return keccak([]byte("najdeno:user:" + salt + ":" + strconv.FormatInt(userID, 10)))
}

func keccak(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return common.BytesToHash(h.Sum(nil))
}
