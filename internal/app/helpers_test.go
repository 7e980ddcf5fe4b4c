package app

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ggonzalez94/nft-cli/internal/execution"
	"github.com/ggonzalez94/nft-cli/internal/execution/signer"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
)

const (
	testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"
	azukiContract  = "0xed5af388653567af2f388e6224dc7c4b3241c544"
)

var testNow = time.Unix(1_700_000_000, 0)

// marketStub is an in-memory marketplace API.
type marketStub struct {
	mu     sync.Mutex
	hits   map[string]int
	posted []map[string]any
}

func (m *marketStub) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[key]
}

func newMarketServer(t *testing.T) (*httptest.Server, *marketStub) {
	t.Helper()
	stub := &marketStub{hits: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		path := r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(path, "/api/v2/chain/ethereum/account/"):
			stub.hits["nfts"]++
			_, _ = io.WriteString(w, `{"nfts":[
				{"identifier":"7","collection":"azuki","contract":"0xED5AF388653567Af2F388E6224dC7C4b3241C544","token_standard":"erc721","name":"Azuki #7"},
				{"identifier":"12","collection":"pudgypenguins","contract":"0xBd3531dA5CF5857e7CfAA92426877b022e612cf8","token_standard":"erc721"}
			],"next":""}`)
		case path == "/api/v2/collections/azuki/stats":
			stub.hits["stats"]++
			_, _ = io.WriteString(w, `{"total":{"floor_price":2,"floor_price_symbol":"ETH","num_owners":5000,"sales":100}}`)
		case path == "/api/v2/events/collection/azuki":
			stub.hits["events"]++
			_, _ = io.WriteString(w, `{"asset_events":[{"event_type":"sale","payment":{"quantity":"1800000000000000000","decimals":18,"symbol":"ETH"}}]}`)
		case path == "/api/v2/listings/collection/azuki/best":
			stub.hits["best"]++
			_, _ = io.WriteString(w, `{"listings":[`+listingJSON("0xa1", "1000000000000000000", "7")+`,`+listingJSON("0xa3", "1500000000000000000", "9")+`,`+listingJSON("0xa2", "1050000000000000000", "8")+`]}`)
		case r.Method == http.MethodPost && strings.HasPrefix(path, "/api/v2/orders/ethereum/seaport/"):
			stub.hits["post"]++
			body := map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			body["route"] = path
			stub.posted = append(stub.posted, body)
			_, _ = io.WriteString(w, `{"order":{"order_hash":"0xposted"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"errors":["not found"]}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, stub
}

func listingJSON(hash, wei, token string) string {
	return fmt.Sprintf(`{"order_hash":%q,"chain":"ethereum","protocol_address":"0x0000000000000068F116a894984e2DB1123eB395",
		"price":{"current":{"currency":"ETH","decimals":18,"value":%q}},
		"protocol_data":{"parameters":{"offerer":"0x1111111111111111111111111111111111111111",
		"offer":[{"itemType":2,"token":%q,"identifierOrCriteria":%q}],"endTime":"1700604800"}}}`, hash, wei, azukiContract, token)
}

// rpcStub answers the read-only contract calls made while building orders.
type rpcStub struct {
	approved bool
	counter  int64
	balance  int64
}

func selector(sig string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(sig))[:4])
}

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func (r *rpcStub) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if len(msg.Data) < 4 {
		return nil, fmt.Errorf("short calldata")
	}
	switch hex.EncodeToString(msg.Data[:4]) {
	case selector("getCounter(address)"):
		return word(r.counter), nil
	case selector("isApprovedForAll(address,address)"):
		if r.approved {
			return word(1), nil
		}
		return word(0), nil
	case selector("balanceOf(address)"), selector("allowance(address,address)"):
		return word(r.balance), nil
	}
	return nil, fmt.Errorf("unexpected call %x", msg.Data[:4])
}

func (r *rpcStub) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (r *rpcStub) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, fmt.Errorf("not expected")
}

func (r *rpcStub) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, fmt.Errorf("not expected")
}

func (r *rpcStub) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return nil, fmt.Errorf("not expected")
}

func (r *rpcStub) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, fmt.Errorf("not expected")
}

func (r *rpcStub) SendTransaction(context.Context, *types.Transaction) error {
	return fmt.Errorf("not expected")
}

func (r *rpcStub) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, fmt.Errorf("not expected")
}

type testHarness struct {
	runner *Runner
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	market *marketStub
	rpc    *rpcStub
}

// newHarness isolates config, cache and sessions under a temp dir and points
// the marketplace at a local stub.
func newHarness(t *testing.T, p prompt.Prompter) *testHarness {
	t.Helper()
	srv, market := newMarketServer(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_CACHE_HOME", dir)
	t.Setenv("NFT_OPENSEA_URL", srv.URL)
	t.Setenv("NFT_OPENSEA_API_KEY", "test-key")
	t.Setenv("NFT_RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("NFT_CHAIN", "ethereum")
	t.Setenv("NFT_SESSION_BACKEND", "sqlite")
	t.Setenv("NFT_ALLOW_COLLECTIONS", "")
	t.Setenv("NFT_DENY_COLLECTIONS", "")

	h := &testHarness{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}, market: market, rpc: &rpcStub{approved: true, counter: 3}}
	h.runner = NewRunnerWithWriters(h.stdout, h.stderr)
	h.runner.now = func() time.Time { return testNow }
	h.runner.prompter = p
	h.runner.dial = func(context.Context, string) (execution.Backend, func(), error) {
		return h.rpc, nil, nil
	}
	h.runner.newSigner = func(string, string) (signer.Signer, error) {
		s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testPrivateKey})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return h
}

func (h *testHarness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	return h.runner.RunContext(context.Background(), args)
}

func (h *testHarness) signerAddress(t *testing.T) string {
	t.Helper()
	s, err := h.runner.newSigner("", "")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return strings.ToLower(s.Address().Hex())
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    *struct {
		Code    int    `json:"code"`
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		Command   string `json:"command"`
		SessionID string `json:"session_id"`
		Cache     struct {
			Status string `json:"status"`
		} `json:"cache"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, buf *bytes.Buffer) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope failed: %v output=%s", err, buf.String())
	}
	return env
}

func bytesOf(raw json.RawMessage) *bytes.Buffer { return bytes.NewBuffer(raw) }

func decodeJSON(t *testing.T, buf *bytes.Buffer, dst any) {
	t.Helper()
	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		t.Fatalf("decode output failed: %v output=%s", err, buf.String())
	}
}
