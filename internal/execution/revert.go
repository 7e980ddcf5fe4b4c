package execution

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
)

var (
	errorStringSelector = common.FromHex("0x08c379a0")
	panicSelector       = common.FromHex("0x4e487b71")
)

// dataError matches go-ethereum rpc errors that carry revert data.
type dataError interface {
	error
	ErrorData() interface{}
}

func wrapEVMExecutionError(code clierr.Code, message string, err error) error {
	if err == nil {
		return nil
	}
	if reason := decodeRevertFromError(err); reason != "" {
		return clierr.Wrap(code, fmt.Sprintf("%s: %s", message, reason), err)
	}
	return clierr.Wrap(code, message, err)
}

func decodeRevertFromError(err error) string {
	var de dataError
	if !errors.As(err, &de) {
		return ""
	}
	switch data := de.ErrorData().(type) {
	case string:
		return decodeRevertData(common.FromHex(data))
	case []byte:
		return decodeRevertData(data)
	}
	return ""
}

func decodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	selector, payload := data[:4], data[4:]
	switch {
	case bytes.Equal(selector, errorStringSelector):
		stringTy, _ := abi.NewType("string", "", nil)
		values, err := abi.Arguments{{Type: stringTy}}.Unpack(payload)
		if err != nil || len(values) != 1 {
			return ""
		}
		reason, _ := values[0].(string)
		return strings.TrimSpace(reason)
	case bytes.Equal(selector, panicSelector):
		uintTy, _ := abi.NewType("uint256", "", nil)
		values, err := abi.Arguments{{Type: uintTy}}.Unpack(payload)
		if err != nil || len(values) != 1 {
			return "panic"
		}
		if code, ok := values[0].(*big.Int); ok {
			return fmt.Sprintf("panic code 0x%x", code)
		}
		return "panic"
	default:
		return "custom error 0x" + common.Bytes2Hex(selector)
	}
}
