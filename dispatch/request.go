package dispatch

import (
	"net/http"
	"net/url"

	"github.com/jrsteele09/rhr-session/identity"
)

// Request is one logical outbound call. It is passed by value; the resend
// after a refresh is a copy with IsRetry set.
type Request struct {
	Method  string
	Path    string // relative to the API base URL, e.g. "/users/me/"
	Query   url.Values
	Header  http.Header
	Body    []byte
	IsRetry bool
}

func (r Request) retry() Request {
	r.IsRetry = true
	return r
}

// withRequestID returns a copy whose header carries a correlation ID. The
// original header map is never modified.
func (r Request) withRequestID(id string) Request {
	h := r.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if h.Get(headerRequestID) == "" {
		h.Set(headerRequestID, id)
	}
	r.Header = h
	return r
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Err returns nil for a 2xx response, else the decoded API error.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return identity.DecodeError(r.StatusCode, r.Body)
}
