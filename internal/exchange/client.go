package exchange

// baseClient holds the fields every venue adapter configures the same
// way, merged through the options pattern below. Grounded on
// mcp.Client/mcp.ClientOption's preset-then-override composition
// (NewArchitectClientWithOptions builds a provider's preset option
// slice, appends the caller's options so they take priority, then
// constructs one base client) — adapted here from "one HTTP client per
// AI provider" to "one base client per trading venue".
type baseClient struct {
	Provider    string
	APIKey      string
	APISecret   string
	BaseURL     string
	Testnet     bool
	ReadsPerSec float64
	OrdersPerSec float64
}

// ClientOption configures a baseClient; later options in the slice
// override earlier ones applied to the same field.
type ClientOption func(*baseClient)

// WithProvider sets the venue name, used in log lines and error
// messages.
func WithProvider(name string) ClientOption {
	return func(c *baseClient) { c.Provider = name }
}

// WithCredentials sets the API key/secret pair (or, for wallet-based
// venues, the hex private key as APISecret and an empty APIKey).
func WithCredentials(apiKey, apiSecret string) ClientOption {
	return func(c *baseClient) { c.APIKey = apiKey; c.APISecret = apiSecret }
}

// WithBaseURL overrides the venue's default REST/WS base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *baseClient) { c.BaseURL = url }
}

// WithTestnet routes the adapter at the venue's testnet endpoints.
func WithTestnet(testnet bool) ClientOption {
	return func(c *baseClient) { c.Testnet = testnet }
}

// WithRateLimit overrides the default requests-per-second budget for
// market-data reads and order placement.
func WithRateLimit(readsPerSec, ordersPerSec float64) ClientOption {
	return func(c *baseClient) { c.ReadsPerSec = readsPerSec; c.OrdersPerSec = ordersPerSec }
}

// newBaseClient applies a venue's preset options followed by the
// caller's overrides, exactly as NewArchitectClientWithOptions merges
// architectOpts then opts before constructing the base client.
func newBaseClient(preset []ClientOption, opts ...ClientOption) *baseClient {
	c := &baseClient{ReadsPerSec: 10, OrdersPerSec: 5}
	for _, o := range preset {
		o(c)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
