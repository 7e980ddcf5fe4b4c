package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	OpenSeaBaseURL     = "https://api.opensea.io"
	OpenSeaTestnetURL  = "https://testnets-api.opensea.io"
	OpenSeaAPIKeyEnv   = "NFT_OPENSEA_API_KEY"
	OpenSeaProviderTag = "opensea"
)

// MarketplaceBaseURL picks the API host for a chain unless override is set.
func MarketplaceBaseURL(override string, chainID int64) string {
	if v := strings.TrimRight(strings.TrimSpace(override), "/"); v != "" {
		return v
	}
	if chainID == 11155111 {
		return OpenSeaTestnetURL
	}
	return OpenSeaBaseURL
}

// IsAllowedMarketplaceURL rejects plaintext or unknown hosts for a base URL
// override. Loopback hosts are accepted so local mocks work.
func IsAllowedMarketplaceURL(endpoint string) bool {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	if scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "api.opensea.io" || host == "testnets-api.opensea.io"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
