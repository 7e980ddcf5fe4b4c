package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/nft-cli/internal/config"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

func listingEnvelope() model.Envelope {
	return model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data: []map[string]any{{
			"token_id": "7",
			"price":    map[string]any{"amount_decimal": "1.5", "currency": "ETH"},
		}},
		Meta: model.EnvelopeMeta{Timestamp: time.Unix(1_700_000_000, 0), Command: "scan"},
	}
}

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"token_id"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, listingEnvelope(), settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["token_id"] != "7" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["price"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderSelectDottedField(t *testing.T) {
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"price.amount_decimal"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, listingEnvelope(), settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if out[0]["price.amount_decimal"] != "1.5" {
		t.Fatalf("unexpected dotted projection: %s", buf.String())
	}
}

func TestRenderPlainFlattensNested(t *testing.T) {
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, listingEnvelope(), settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line != "price.amount_decimal=1.5 price.currency=ETH token_id=7" {
		t.Fatalf("unexpected plain output: %q", line)
	}
}

func TestRenderPlainEnvelopeWithWarnings(t *testing.T) {
	env := listingEnvelope()
	env.Warnings = []string{"served from cache"}
	env.Meta.SessionID = "abc"
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, warning and data lines, got %q", buf.String())
	}
	if lines[0] != "command=scan session=abc success=true" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if lines[1] != "warning: served from cache" {
		t.Fatalf("unexpected warning line: %q", lines[1])
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := Render(&buf, listingEnvelope(), config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if env["version"] != "v1" || env["success"] != true {
		t.Fatalf("unexpected envelope: %s", buf.String())
	}
	if _, ok := env["error"]; !ok {
		t.Fatalf("error key must always be present: %s", buf.String())
	}
}
