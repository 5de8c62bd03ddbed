package core

import "maps"

// Params is an untyped set of request parameters. For privileged Gemini calls
// they are merged into the signed JSON payload.
type Params map[string]any

// Request describes one call to the venue before signing.
type Request struct {
	Method string `json:"method"`
	// Endpoint is the short endpoint name used for logs and metrics (e.g., "mytrades").
	Endpoint string `json:"endpoint"`
	// Path is the canonical request path (e.g., "/v1/mytrades"); it is also signed.
	Path string `json:"path"`
	// Payload holds call-specific fields of a privileged request.
	Payload Params `json:"payload,omitempty"`
	// RequireAuth marks a privileged request that must be signed before every attempt.
	RequireAuth bool `json:"require_auth"`
}

// NewRequest creates a request for the given method, endpoint name and path.
func NewRequest(method, endpoint, path string) *Request {
	return &Request{
		Method:   method,
		Endpoint: endpoint,
		Path:     path,
		Payload:  make(Params),
	}
}

// SetPayload sets one payload field and returns the request for chaining.
func (r *Request) SetPayload(key string, value any) *Request {
	if r.Payload == nil {
		r.Payload = make(Params)
	}
	r.Payload[key] = value
	return r
}

// SetPayloadParams copies params into the payload and returns the request for chaining.
func (r *Request) SetPayloadParams(params Params) *Request {
	if r.Payload == nil {
		r.Payload = make(Params)
	}
	maps.Copy(r.Payload, params)
	return r
}

// SetRequireAuth marks the request as privileged and returns it for chaining.
func (r *Request) SetRequireAuth(require bool) *Request {
	r.RequireAuth = require
	return r
}
