package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/nft-cli/internal/errors"
	"github.com/ggonzalez94/nft-cli/internal/model"
)

// CheckCommandAllowed enforces --enable-commands. A listed parent command
// also allows its subcommands.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	normPath := normalize(commandPath)
	for _, allowed := range allowlist {
		a := normalize(allowed)
		if a == normPath || strings.HasPrefix(normPath, a+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command blocked by --enable-commands policy")
}

// Collections is the allow/deny filter applied to marketplace collections.
// Deny wins over allow; an empty allow list admits everything not denied.
type Collections struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

func NewCollections(allow, deny []string) Collections {
	return Collections{allow: toSet(allow), deny: toSet(deny)}
}

func (c Collections) Allowed(slug string) bool {
	key := normalize(slug)
	if _, denied := c.deny[key]; denied {
		return false
	}
	if len(c.allow) == 0 {
		return true
	}
	_, ok := c.allow[key]
	return ok
}

// Check returns a blocked error for a collection the filter rejects.
func (c Collections) Check(slug string) error {
	if c.Allowed(slug) {
		return nil
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("collection %s blocked by collection policy", slug))
}

// FilterNFTs keeps only items from admitted collections.
func (c Collections) FilterNFTs(items []model.NFT) []model.NFT {
	out := make([]model.NFT, 0, len(items))
	for _, item := range items {
		if c.Allowed(item.Collection) {
			out = append(out, item)
		}
	}
	return out
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if v := normalize(item); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
