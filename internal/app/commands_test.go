package app

import (
	"context"
	"strings"
	"testing"

	"github.com/ggonzalez94/nft-cli/internal/model"
	"github.com/ggonzalez94/nft-cli/internal/prompt"
)

func TestListFromPresetsDryRun(t *testing.T) {
	h := newHarness(t, nil)
	code := h.run("list", "--no-input", "--collection", "azuki", "--token-id", "7",
		"--method", "floor", "--value", "10", "--yes", "--dry-run")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	env := decodeEnvelope(t, h.stdout)
	var receipt model.OrderReceipt
	decodeJSON(t, bytesOf(env.Data), &receipt)
	if receipt.Kind != "listing" || receipt.Posted {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if receipt.Price.AmountDecimal != "2.2" || receipt.Price.Currency != "ETH" {
		t.Fatalf("expected 2.2 ETH (floor +10%%), got %+v", receipt.Price)
	}
	if receipt.ExpiresAt != "2023-11-21T22:13:20Z" {
		t.Fatalf("expected a seven day listing, got %s", receipt.ExpiresAt)
	}
	if !strings.HasPrefix(receipt.OrderHash, "0x") || len(receipt.OrderHash) != 66 {
		t.Fatalf("expected a local order hash, got %q", receipt.OrderHash)
	}
	if h.market.count("post") != 0 {
		t.Fatal("dry run must not post the order")
	}

	if code := h.run("sessions", "list", "--results-only"); code != 0 {
		t.Fatalf("sessions list failed: %d stderr=%s", code, h.stderr.String())
	}
	var sessions []model.SessionSummary
	decodeJSON(t, h.stdout, &sessions)
	if len(sessions) != 0 {
		t.Fatalf("expected the finished session to be removed, got %+v", sessions)
	}
}

func TestListRequiresApprovalFlag(t *testing.T) {
	h := newHarness(t, nil)
	h.rpc.approved = false
	code := h.run("list", "--no-input", "--collection", "azuki", "--token-id", "7",
		"--method", "fixed", "--value", "1.5", "--yes")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, h.stderr.String())
	}
	if !strings.Contains(h.stderr.String(), "--approve") {
		t.Fatalf("expected approval hint, got %s", h.stderr.String())
	}
}

func TestListWithoutPromptNeedsEveryPreset(t *testing.T) {
	h := newHarness(t, nil)
	code := h.run("list", "--no-input", "--collection", "azuki")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, h.stderr.String())
	}
	if !strings.Contains(h.stderr.String(), "--token-id") {
		t.Fatalf("expected missing --token-id message, got %s", h.stderr.String())
	}
}

func TestListInterruptedSessionResumes(t *testing.T) {
	script := prompt.NewScripted(
		prompt.Answer{Value: "azuki"},
		prompt.Answer{Err: context.Canceled},
	)
	h := newHarness(t, script)
	if code := h.run("list"); code != 3 {
		t.Fatalf("expected exit 3, got %d stderr=%s", code, h.stderr.String())
	}
	env := decodeEnvelope(t, h.stderr)
	sessionID := env.Meta.SessionID
	if sessionID == "" {
		t.Fatalf("expected session id in error meta, got %s", h.stderr.String())
	}

	if code := h.run("sessions", "list", "--results-only"); code != 0 {
		t.Fatalf("sessions list failed: %d stderr=%s", code, h.stderr.String())
	}
	var sessions []model.SessionSummary
	decodeJSON(t, h.stdout, &sessions)
	if len(sessions) != 1 || sessions[0].ID != sessionID || sessions[0].State != "select-nft" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	code := h.run("list", "--resume", sessionID, "--no-input", "--token-id", "7",
		"--method", "fixed", "--value", "1.5", "--yes", "--dry-run")
	if code != 0 {
		t.Fatalf("resume failed: %d stderr=%s", code, h.stderr.String())
	}
	resumed := decodeEnvelope(t, h.stdout)
	if resumed.Meta.SessionID != sessionID {
		t.Fatalf("expected resumed session %s, got %s", sessionID, resumed.Meta.SessionID)
	}
	var receipt model.OrderReceipt
	decodeJSON(t, bytesOf(resumed.Data), &receipt)
	if receipt.Collection != "azuki" || receipt.TokenID != "7" || receipt.Price.AmountDecimal != "1.5" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	if code := h.run("sessions", "show", sessionID); code != 24 {
		t.Fatalf("expected finished session to be gone (exit 24), got %d", code)
	}
}

func TestListResumeUnknownSession(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("list", "--resume", "missing"); code != 24 {
		t.Fatalf("expected exit 24, got %d stderr=%s", code, h.stderr.String())
	}
}

func TestListPostsOrder(t *testing.T) {
	h := newHarness(t, nil)
	code := h.run("list", "--no-input", "--collection", "azuki", "--token-id", "7",
		"--method", "last-sale", "--value", "0", "--yes")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	env := decodeEnvelope(t, h.stdout)
	var receipt model.OrderReceipt
	decodeJSON(t, bytesOf(env.Data), &receipt)
	if !receipt.Posted || receipt.OrderHash != "0xposted" || receipt.Price.AmountDecimal != "1.8" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if h.market.count("post") != 1 || !strings.HasSuffix(h.market.posted[0]["route"].(string), "/listings") {
		t.Fatalf("expected one listing post, got %+v", h.market.posted)
	}
}

func TestSessionsDeleteUnknown(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("sessions", "delete", "nope"); code != 24 {
		t.Fatalf("expected exit 24, got %d stderr=%s", code, h.stderr.String())
	}
}

func TestFloorIsCached(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("floor", "--collection", "azuki"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	env := decodeEnvelope(t, h.stdout)
	var stats model.CollectionStats
	decodeJSON(t, bytesOf(env.Data), &stats)
	if stats.Floor == nil || stats.Floor.AmountDecimal != "2" {
		t.Fatalf("unexpected floor: %+v", stats.Floor)
	}
	if stats.LastSale == nil || stats.LastSale.AmountDecimal != "1.8" {
		t.Fatalf("unexpected last sale: %+v", stats.LastSale)
	}
	if env.Meta.Cache.Status != "write" {
		t.Fatalf("expected cache write, got %q", env.Meta.Cache.Status)
	}

	if code := h.run("floor", "--collection", "azuki"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if env := decodeEnvelope(t, h.stdout); env.Meta.Cache.Status != "hit" {
		t.Fatalf("expected cache hit, got %q", env.Meta.Cache.Status)
	}
	if h.market.count("stats") != 1 {
		t.Fatalf("expected a single stats fetch, got %d", h.market.count("stats"))
	}
}

func TestScanReportsGaps(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("scan", "--collection", "azuki", "--limit", "3", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var result model.ScanResult
	decodeJSON(t, h.stdout, &result)
	if result.Scanned != 3 || len(result.Gaps) != 2 {
		t.Fatalf("unexpected scan: %+v", result)
	}
	if result.Gaps[0].GapPct != "42.86" || result.Gaps[0].Lower.TokenID != "8" {
		t.Fatalf("unexpected top gap: %+v", result.Gaps[0])
	}
}

func TestScanRejectsSmallLimit(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("scan", "--collection", "azuki", "--limit", "1"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestHoldingsCacheAndRefresh(t *testing.T) {
	h := newHarness(t, nil)
	if code := h.run("holdings", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var holdings model.Holdings
	decodeJSON(t, h.stdout, &holdings)
	if len(holdings.Items) != 2 || holdings.Wallet != h.signerAddress(t) {
		t.Fatalf("unexpected holdings: %+v", holdings)
	}

	if code := h.run("holdings", "--collection", "azuki", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	holdings = model.Holdings{}
	decodeJSON(t, h.stdout, &holdings)
	if len(holdings.Items) != 1 || holdings.Items[0].TokenID != "7" {
		t.Fatalf("expected only azuki, got %+v", holdings.Items)
	}
	if h.market.count("nfts") != 1 {
		t.Fatalf("expected the second call to hit the cache, got %d fetches", h.market.count("nfts"))
	}

	if code := h.run("holdings", "--refresh"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	if h.market.count("nfts") != 2 {
		t.Fatalf("expected --refresh to refetch, got %d fetches", h.market.count("nfts"))
	}
}

func TestHoldingsDeniedCollectionIsHidden(t *testing.T) {
	h := newHarness(t, nil)
	t.Setenv("NFT_DENY_COLLECTIONS", "pudgypenguins")
	if code := h.run("holdings", "--results-only"); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	var holdings model.Holdings
	decodeJSON(t, h.stdout, &holdings)
	if len(holdings.Items) != 1 || holdings.Items[0].Collection != "azuki" {
		t.Fatalf("unexpected holdings: %+v", holdings.Items)
	}
}

func TestOfferDryRunWarnsOnBalance(t *testing.T) {
	h := newHarness(t, nil)
	code := h.run("offer", "--collection", "azuki", "--token-id", "7", "--price", "1",
		"--contract", azukiContract, "--dry-run")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, h.stderr.String())
	}
	env := decodeEnvelope(t, h.stdout)
	if len(env.Warnings) == 0 || !strings.Contains(env.Warnings[0], "insufficient") {
		t.Fatalf("expected balance warning, got %v", env.Warnings)
	}
	var receipt model.OrderReceipt
	decodeJSON(t, bytesOf(env.Data), &receipt)
	if receipt.Kind != "offer" || receipt.Price.Currency != "WETH" || receipt.Posted {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestOfferWithoutBalanceFails(t *testing.T) {
	h := newHarness(t, nil)
	code := h.run("offer", "--collection", "azuki", "--token-id", "7", "--price", "1", "--contract", azukiContract)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d stderr=%s", code, h.stderr.String())
	}
	if h.market.count("post") != 0 {
		t.Fatal("offer must not be posted without funds")
	}
}

func TestBuyDeniedCollection(t *testing.T) {
	h := newHarness(t, nil)
	t.Setenv("NFT_DENY_COLLECTIONS", "azuki")
	if code := h.run("buy", "--collection", "azuki", "--token-id", "7"); code != 16 {
		t.Fatalf("expected exit 16, got %d stderr=%s", code, h.stderr.String())
	}
}
