package gateway

import "fmt"

// Kind categorizes the errors this package can return, in the same spirit
// as [websocket.Kind]: check a specific failure mode with [errors.Is]
// against one of the sentinel values below.
type Kind int

const (
	// KindUnknownEndpoint means the discovery HTTP request returned a
	// non-2xx status code.
	KindUnknownEndpoint Kind = iota
	// KindJSON means a discovery response or an incoming packet's D
	// payload couldn't be decoded as JSON.
	KindJSON
	// KindBadCompression means the zlib inflate stream rejected a
	// compressed message (e.g. corrupt zlib header or deflate data).
	KindBadCompression
)

func (k Kind) String() string {
	switch k {
	case KindUnknownEndpoint:
		return "unknown endpoint"
	case KindJSON:
		return "json"
	case KindBadCompression:
		return "bad compression"
	default:
		return "unknown"
	}
}

// Error is the error type returned by this package.
type Error struct {
	Kind Kind
	Code int // Set for KindUnknownEndpoint: the HTTP status code received.
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindUnknownEndpoint && e.Code != 0 {
		return fmt.Sprintf("gateway: %s: http status %d", e.Kind, e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("gateway: %s", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrUnknownEndpoint = &Error{Kind: KindUnknownEndpoint}
	ErrJSON            = &Error{Kind: KindJSON}
	ErrBadCompression  = &Error{Kind: KindBadCompression}
)

func unknownEndpointErr(code int) error {
	return &Error{Kind: KindUnknownEndpoint, Code: code}
}

func jsonErr(err error) error {
	return &Error{Kind: KindJSON, Err: err}
}

func badCompressionErr(err error) error {
	return &Error{Kind: KindBadCompression, Err: err}
}
