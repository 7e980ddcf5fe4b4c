// Package execution sends marketplace transactions from the local signer.
package execution

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/execution/signer"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

// Backend is the subset of an RPC client the executor needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ethereum.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc url")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	return client, nil
}

type Options struct {
	// DryRun stops after the eth_call simulation.
	DryRun             bool
	PollInterval       time.Duration
	Timeout            time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	Logger             *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

func DefaultOptions() Options {
	return Options{
		PollInterval:  2 * time.Second,
		Timeout:       2 * time.Minute,
		GasMultiplier: 1.2,
	}
}

const (
	StatusSimulated = "simulated"
	StatusConfirmed = "confirmed"
)

type Result struct {
	Status      string
	From        string
	TxHash      string
	BlockNumber uint64
	GasUsed     uint64
}

// Execute simulates req, then signs, broadcasts and waits for its receipt.
func Execute(ctx context.Context, backend Backend, txSigner signer.Signer, req model.TxRequest, opts Options) (Result, error) {
	if backend == nil {
		return Result{}, clierr.New(clierr.CodeInternal, "missing rpc backend")
	}
	if txSigner == nil {
		return Result{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.GasMultiplier <= 1 {
		opts.GasMultiplier = 1.2
	}

	if !common.IsHexAddress(strings.TrimSpace(req.To)) {
		return Result{}, clierr.New(clierr.CodeUsage, "invalid transaction target")
	}
	target := common.HexToAddress(req.To)
	data, err := decodeHex(req.Data)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeUsage, "decode calldata", err)
	}
	value := new(big.Int)
	if strings.TrimSpace(req.Value) != "" {
		if _, ok := value.SetString(strings.TrimSpace(req.Value), 10); !ok || value.Sign() < 0 {
			return Result{}, clierr.New(clierr.CodeUsage, "invalid transaction value")
		}
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if req.ChainID != "" {
		expected := fmt.Sprintf("eip155:%d", chainID.Int64())
		if !strings.EqualFold(strings.TrimSpace(req.ChainID), expected) {
			return Result{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("rpc chain mismatch: rpc is %s, transaction is for %s", expected, req.ChainID))
		}
	}

	from := txSigner.Address()
	result := Result{From: from.Hex()}
	msg := ethereum.CallMsg{From: from, To: &target, Value: value, Data: data}
	if _, err := backend.CallContract(ctx, msg, nil); err != nil {
		return result, wrapEVMExecutionError(clierr.CodeTxSim, "simulate transaction (eth_call)", err)
	}
	result.Status = StatusSimulated
	if opts.DryRun {
		return result, nil
	}

	gasLimit, err := backend.EstimateGas(ctx, msg)
	if err != nil {
		return result, wrapEVMExecutionError(clierr.CodeTxSim, "estimate gas", err)
	}
	gasLimit = uint64(float64(gasLimit) * opts.GasMultiplier)

	tipCap, err := resolveTipCap(ctx, backend, opts.MaxPriorityFeeGwei)
	if err != nil {
		return result, err
	}
	header, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return result, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, opts.MaxFeeGwei)
	if err != nil {
		return result, err
	}

	unlock := acquireSignerNonceLock(chainID, from)
	defer unlock()
	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return result, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &target,
		Value:     value,
		Data:      data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return result, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return result, wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	result.TxHash = signed.Hash().Hex()
	opts.logger().Info("transaction broadcast", "tx", result.TxHash, "nonce", nonce, "gas", gasLimit)

	receipt, err := waitForReceipt(ctx, backend, signed.Hash(), opts)
	if err != nil {
		return result, err
	}
	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.GasUsed = receipt.GasUsed
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, clierr.New(clierr.CodeTxSim, "transaction reverted on-chain")
	}
	result.Status = StatusConfirmed
	return result, nil
}

func waitForReceipt(ctx context.Context, backend Backend, hash common.Hash, opts Options) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := backend.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.BlockNumber == nil {
				receipt.BlockNumber = new(big.Int)
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			opts.logger().Debug("receipt poll failed", "tx", hash.Hex(), "error", err)
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, clierr.Wrap(clierr.CodeCancelled, "stopped waiting for receipt", ctx.Err())
			}
			return nil, clierr.Wrap(clierr.CodeTxTimeout, "timed out waiting for receipt", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

var signerNonceLocks sync.Map

// acquireSignerNonceLock serializes nonce reads and broadcasts per signer
// and chain within this process.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := chainID.String() + ":" + strings.ToLower(addr.Hex())
	v, _ := signerNonceLocks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func decodeHex(v string) ([]byte, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return buf, nil
}
