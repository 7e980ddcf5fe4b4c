package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/id"
	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/registry"
)

var (
	seaportABI = mustABI(registry.SeaportABI)
	erc721ABI  = mustABI(registry.ERC721ApprovalABI)
	erc20ABI   = mustABI(registry.ERC20MinimalABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Counter reads the offerer's Seaport counter, which every signed order
// must carry.
func Counter(ctx context.Context, caller ethereum.ContractCaller, offerer string) (*big.Int, error) {
	addr, err := id.ParseAddress(offerer, "offerer")
	if err != nil {
		return nil, err
	}
	return callUint(ctx, caller, seaportABI, common.HexToAddress(registry.SeaportAddress), "getCounter", common.HexToAddress(addr))
}

// IsApprovedForAll reports whether the marketplace conduit may move owner's
// tokens from contract.
func IsApprovedForAll(ctx context.Context, caller ethereum.ContractCaller, contract, owner string) (bool, error) {
	out, err := call(ctx, caller, erc721ABI, contract, "isApprovedForAll",
		common.HexToAddress(owner), common.HexToAddress(registry.ConduitAddress))
	if err != nil {
		return false, err
	}
	approved, ok := out[0].(bool)
	if !ok {
		return false, clierr.New(clierr.CodeUnavailable, "unexpected isApprovedForAll result")
	}
	return approved, nil
}

// ApprovalTx grants the conduit operator rights over contract.
func ApprovalTx(chain id.Chain, contract string) (model.TxRequest, error) {
	addr, err := id.ParseAddress(contract, "contract")
	if err != nil {
		return model.TxRequest{}, err
	}
	data, err := erc721ABI.Pack("setApprovalForAll", common.HexToAddress(registry.ConduitAddress), true)
	if err != nil {
		return model.TxRequest{}, clierr.Wrap(clierr.CodeInternal, "pack setApprovalForAll", err)
	}
	return model.TxRequest{
		ChainID: chain.CAIP2,
		To:      addr,
		Data:    "0x" + common.Bytes2Hex(data),
		Value:   "0",
	}, nil
}

// PaymentReadiness checks that owner holds amount of token and that the
// conduit may spend it. Offers are only fillable when both hold.
func PaymentReadiness(ctx context.Context, caller ethereum.ContractCaller, token, owner string, amount *big.Int) error {
	ownerAddr := common.HexToAddress(owner)
	tokenAddr := common.HexToAddress(token)
	balance, err := callUint(ctx, caller, erc20ABI, tokenAddr, "balanceOf", ownerAddr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("insufficient wrapped balance: have %s, need %s", balance, amount))
	}
	allowance, err := callUint(ctx, caller, erc20ABI, tokenAddr, "allowance", ownerAddr, common.HexToAddress(registry.ConduitAddress))
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("conduit allowance %s is below offer amount %s", allowance, amount))
	}
	return nil
}

func callUint(ctx context.Context, caller ethereum.ContractCaller, parsed abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := call(ctx, caller, parsed, to.Hex(), method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("unexpected %s result", method))
	}
	return v, nil
}

func call(ctx context.Context, caller ethereum.ContractCaller, parsed abi.ABI, to, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "pack "+method, err)
	}
	target := common.HexToAddress(to)
	raw, err := caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, "call "+method, err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil || len(out) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("decode %s result", method))
	}
	return out, nil
}
