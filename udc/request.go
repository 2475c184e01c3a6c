package udc

import "github.com/ardnew/usbf/pkg"

// Request is one transfer queued on an endpoint. The caller owns Buf and
// must not touch it until Complete runs.
type Request struct {
	Buf    []byte
	Length int

	// Zero requests a trailing zero-length packet on IN transfers whose
	// Length is a multiple of the endpoint's max packet size.
	Zero bool

	// Complete is called exactly once when the request leaves the queue,
	// including when it is cancelled or flushed.
	Complete func(ep *Endpoint, req *Request)

	// Context is free for the submitter.
	Context any

	// Set by the controller.
	Actual int
	Status pkg.RequestStatus
	Err    error

	ep *Endpoint
	in bool
}

// Queued reports whether the request currently sits on an endpoint queue.
func (r *Request) Queued() bool { return r.ep != nil }

// IsIn reports whether the request was queued as an IN transfer.
func (r *Request) IsIn() bool { return r.in }
