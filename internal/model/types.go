package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	SessionID string           `json:"session_id,omitempty"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	RequiresKey  bool     `json:"requires_key"`
	KeyEnvVar    string   `json:"key_env_var,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// Price is a quote in a currency with both exact base units and a display
// decimal.
type Price struct {
	Currency        string `json:"currency"`
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

type NFT struct {
	Chain      string `json:"chain"`
	Contract   string `json:"contract"`
	TokenID    string `json:"token_id"`
	Collection string `json:"collection"`
	Name       string `json:"name,omitempty"`
	Standard   string `json:"token_standard,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

type Holdings struct {
	Wallet    string `json:"wallet"`
	Chain     string `json:"chain"`
	Items     []NFT  `json:"items"`
	FetchedAt string `json:"fetched_at"`
}

type CollectionStats struct {
	Collection string `json:"collection"`
	Floor      *Price `json:"floor,omitempty"`
	LastSale   *Price `json:"last_sale,omitempty"`
	Owners     int    `json:"owners,omitempty"`
	TotalSales int64  `json:"total_sales,omitempty"`
	FetchedAt  string `json:"fetched_at"`
}

// Listing is an active sell order as reported by the marketplace.
type Listing struct {
	OrderHash  string `json:"order_hash"`
	Chain      string `json:"chain"`
	Protocol   string `json:"protocol_address"`
	Collection string `json:"collection"`
	Contract   string `json:"contract"`
	TokenID    string `json:"token_id"`
	Maker      string `json:"maker"`
	Price      Price  `json:"price"`
	ExpiresAt  string `json:"expires_at,omitempty"`
}

// Gap is an ordered pair of adjacent listings with the relative price step
// between them.
type Gap struct {
	Rank      int     `json:"rank"`
	Lower     Listing `json:"lower"`
	Upper     Listing `json:"upper"`
	GapPct    string  `json:"gap_pct"`
	GapAmount Price   `json:"gap_amount"`
}

type ScanResult struct {
	Collection string `json:"collection"`
	Floor      *Price `json:"floor,omitempty"`
	Scanned    int    `json:"scanned"`
	Gaps       []Gap  `json:"gaps"`
	FetchedAt  string `json:"fetched_at"`
}

// TxRequest is a ready-to-sign contract call.
type TxRequest struct {
	ChainID string `json:"chain_id"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
}

// OrderReceipt is the marketplace reply after posting a signed order.
type OrderReceipt struct {
	Kind       string `json:"kind"`
	OrderHash  string `json:"order_hash"`
	Chain      string `json:"chain"`
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Price      Price  `json:"price"`
	ExpiresAt  string `json:"expires_at"`
	Posted     bool   `json:"posted"`
}

type PurchaseReceipt struct {
	OrderHash   string `json:"order_hash"`
	Chain       string `json:"chain"`
	Collection  string `json:"collection"`
	TokenID     string `json:"token_id"`
	Price       Price  `json:"price"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber string `json:"block_number,omitempty"`
	GasUsed     string `json:"gas_used,omitempty"`
	Status      string `json:"status"`
	Simulated   bool   `json:"simulated"`
}

type SessionSummary struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	State     string `json:"state"`
	UpdatedAt string `json:"updated_at"`
}
