// Package proto defines the message types exchanged over the JSON-over-TCP
// RPC layer (see pkg/grpc) and mirrored by the HTTP API.
package proto

// Method names registered on the RPC server.
const (
	MethodSearch          = "SearchService.Search"
	MethodInvalidateCache = "SearchService.InvalidateCache"
	MethodHealth          = "SearchService.Health"
)

// SearchRequest is the input to the Search RPC. Page is 1-based.
type SearchRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// SearchResponse is the output of the Search RPC.
type SearchResponse struct {
	Query        string         `json:"query"`
	Page         int            `json:"page"`
	PageSize     int            `json:"page_size"`
	Results      []SearchResult `json:"results"`
	Correction   string         `json:"correction,omitempty"`
	TotalMatches int            `json:"total_matches"`
	ElapsedNanos int64          `json:"elapsed_nanos"`
	Cached       bool           `json:"cached"`
}

// SearchResult is one ranked document.
type SearchResult struct {
	Rank     float64  `json:"rank"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords,omitempty"`
}

// InvalidateCacheRequest drops cached responses. An empty Query drops all.
type InvalidateCacheRequest struct {
	Query string `json:"query,omitempty"`
}

// InvalidateCacheResponse reports how many entries were removed.
type InvalidateCacheResponse struct {
	Removed int `json:"removed"`
}

// HealthCheckResponse mirrors the gRPC health check protocol.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING
}
