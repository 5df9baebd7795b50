package api

// AddServerRequest is the body of POST /servers
type AddServerRequest struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// RouteRequest is the body of POST /route. When RequestID is omitted the service assigns one.
type RouteRequest struct {
	RequestID *int     `json:"request_id,omitempty"`
	Origin    string   `json:"origin"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Error codes carried in ErrorResponse
const (
	CodeEmptyRegistry = "empty_registry"
	CodeEmptyHistory  = "empty_history"
	CodeBadRequest    = "bad_request"
	CodeInternal      = "internal"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Servers int    `json:"servers"`
}
