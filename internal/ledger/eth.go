package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/erazemk/najdeno/internal/config"
)

// contractABI describes the handover registry contract.
const contractABI = `[
  {"type":"function","name":"recordHandover","stateMutability":"nonpayable",
   "inputs":[{"name":"matchKey","type":"bytes32"},{"name":"lostOwner","type":"bytes32"},
             {"name":"foundOwner","type":"bytes32"},{"name":"details","type":"bytes32"},
             {"name":"completedAt","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"isRecorded","stateMutability":"view",
   "inputs":[{"name":"matchKey","type":"bytes32"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getHandover","stateMutability":"view",
   "inputs":[{"name":"matchKey","type":"bytes32"}],
   "outputs":[{"name":"lostOwner","type":"bytes32"},{"name":"foundOwner","type":"bytes32"},
              {"name":"details","type":"bytes32"},{"name":"completedAt","type":"uint256"},
              {"name":"recordedAt","type":"uint256"}]}
]`

// EthDialer returns a Dialer for EVM JSON-RPC endpoints that signs
// transactions with the configured key.
func EthDialer(cfg config.LedgerConfig) (Dialer, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("parsing contract ABI: %w", err)
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	contract := common.HexToAddress(cfg.ContractAddress)
	from := crypto.PubkeyToAddress(key.PublicKey)

	return func(ctx context.Context, endpoint string) (Chain, error) {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("getting chain id: %w", err)
		}
		return &ethChain{
			client:   client,
			abi:      parsed,
			contract: contract,
			key:      key,
			from:     from,
			chainID:  chainID,
			gasLimit: cfg.GasLimit,
		}, nil
	}, nil
}

type ethChain struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
}

func (c *ethChain) BlockNumber(ctx context.Context) (uint64, error) {
	return c.client.BlockNumber(ctx)
}

func (c *ethChain) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return values, nil
}

func (c *ethChain) IsRecorded(ctx context.Context, key common.Hash) (bool, error) {
	values, err := c.call(ctx, "isRecorded", [32]byte(key))
	if err != nil {
		return false, err
	}
	recorded, ok := values[0].(bool)
	if !ok {
		return false, errors.New("unexpected isRecorded result")
	}
	return recorded, nil
}

func (c *ethChain) GetRecord(ctx context.Context, key common.Hash) (*Record, error) {
	values, err := c.call(ctx, "getHandover", [32]byte(key))
	if err != nil {
		return nil, err
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected getHandover result of %d values", len(values))
	}

	lost, ok1 := values[0].([32]byte)
	found, ok2 := values[1].([32]byte)
	details, ok3 := values[2].([32]byte)
	completed, ok4 := values[3].(*big.Int)
	recorded, ok5 := values[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return nil, errors.New("unexpected getHandover result types")
	}
	if recorded.Sign() == 0 {
		return nil, nil
	}

	return &Record{
		MatchKey:    key,
		LostOwner:   lost,
		FoundOwner:  found,
		Details:     details,
		CompletedAt: time.Unix(completed.Int64(), 0).UTC(),
		RecordedAt:  time.Unix(recorded.Int64(), 0).UTC(),
	}, nil
}

func (c *ethChain) Submit(ctx context.Context, h Hashed) (string, error) {
	data, err := c.abi.Pack("recordHandover",
		[32]byte(h.MatchKey), [32]byte(h.LostOwner), [32]byte(h.FoundOwner), [32]byte(h.Details),
		new(big.Int).SetUint64(h.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("packing recordHandover: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return "", fmt.Errorf("getting nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggesting gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Gas:      c.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, signed)
	if err != nil {
		return "", fmt.Errorf("waiting for transaction %s: %w", signed.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("transaction %s: execution reverted", signed.Hash().Hex())
	}
	return signed.Hash().Hex(), nil
}

func (c *ethChain) Close() {
	c.client.Close()
}
