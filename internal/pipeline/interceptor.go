package pipeline

import (
	"context"
	"net/http"
	"time"
)

// Request is the read-only view of an inbound request handed to hooks.
type Request struct {
	ctx    context.Context
	id     string
	method string
	path   string
	header http.Header

	// Set only by the HTTP adapter; the terminal handler it installs writes
	// through them.
	raw  *http.Request
	sink http.ResponseWriter
	next http.Handler
}

// NewRequest builds a request view. The header is cloned.
func NewRequest(ctx context.Context, id, method, path string, header http.Header) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		ctx:    ctx,
		id:     id,
		method: method,
		path:   path,
		header: header.Clone(),
	}
}

// Context returns the request context.
func (r *Request) Context() context.Context { return r.ctx }

// ID returns the request identifier used for log correlation.
func (r *Request) ID() string { return r.id }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// Path returns the request path.
func (r *Request) Path() string { return r.path }

// Header returns the first value of the named header.
func (r *Request) Header(name string) string {
	if r.header == nil {
		return ""
	}
	return r.header.Get(name)
}

func (r *Request) withContext(ctx context.Context) *Request {
	cp := *r
	cp.ctx = ctx
	return &cp
}

// Response is the immutable result produced by a terminal handler.
type Response struct {
	status int
	header http.Header
	body   []byte
	size   int
}

// NewResponse builds a response view. The header and body are copied.
// A zero status is reported as 200.
func NewResponse(status int, header http.Header, body []byte) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	b := make([]byte, len(body))
	copy(b, body)
	return &Response{status: status, header: header.Clone(), body: b, size: len(body)}
}

// Status returns the HTTP status code.
func (r *Response) Status() int { return r.status }

// Header returns the first value of the named response header.
func (r *Response) Header(name string) string {
	if r.header == nil {
		return ""
	}
	return r.header.Get(name)
}

// Body returns a copy of the captured body.
func (r *Response) Body() []byte {
	b := make([]byte, len(r.body))
	copy(b, r.body)
	return b
}

// Size returns the number of body bytes the handler wrote. It can exceed
// len(Body()) when the HTTP adapter truncated its capture.
func (r *Response) Size() int { return r.size }

// Decision is a pre-hook's choice to forward or halt a request.
type Decision struct {
	halt   bool
	status int
	reason string
}

// Continue forwards the request to the next stage.
var Continue = Decision{}

// Halt short-circuits the chain. The status and reason are reported to the
// client by the HTTP adapter.
func Halt(status int, reason string) Decision {
	return Decision{halt: true, status: status, reason: reason}
}

// Halted reports whether the decision stops the chain.
func (d Decision) Halted() bool { return d.halt }

// Halted describes a short-circuit.
type Halted struct {
	Interceptor string
	Status      int
	Reason      string
}

// Exit is what a post-hook sees of the inner stages. Exactly one of
// Response, Err and Halt is set.
type Exit struct {
	Response *Response
	Err      error
	// Halt is only ever set when the chain unwinds on stop.
	Halt *Halted
	// Elapsed is the time spent in the inner stages.
	Elapsed time.Duration
}

// PreHook runs before forwarding. Returning an error aborts the request.
type PreHook func(req *Request) (Decision, error)

// PostHook runs after the inner stages returned.
type PostHook func(req *Request, exit Exit)

// Handler is the terminal stage that produces the response.
type Handler func(req *Request) (*Response, error)

// Interceptor is a named pre/post hook pair. Nil hooks pass through.
type Interceptor struct {
	Label string
	Pre   PreHook
	Post  PostHook
}
