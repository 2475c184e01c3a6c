package pkg

import "errors"

// Controller errors.
var (
	// ErrTimeout indicates a bounded hardware handshake ran out of retries.
	ErrTimeout = errors.New("hardware handshake timeout")

	// ErrInvalidRequest indicates a request that cannot be queued: missing
	// fields, disabled endpoint, or suspended controller.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCancelled indicates a request removed from its queue before it
	// completed.
	ErrCancelled = errors.New("request cancelled")

	// ErrShutdown indicates a request flushed because its endpoint was
	// disabled or the controller unregistered.
	ErrShutdown = errors.New("endpoint shut down")

	// ErrProtocol indicates a Setup packet invalid for the current device
	// state. It is resolved by stalling endpoint 0.
	ErrProtocol = errors.New("protocol violation")

	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrOverrun indicates the host sent more data than the request holds.
	ErrOverrun = errors.New("data overrun")

	// ErrInvalidEndpoint indicates an endpoint index or address that does
	// not exist on the controller.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an operation invalid in the current device
	// state.
	ErrInvalidState = errors.New("invalid device state")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAlreadyRunning indicates a function driver is already bound.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotSupported indicates an unsupported operation or platform.
	ErrNotSupported = errors.New("not supported")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
)

// RequestStatus is the terminal (or pending) state of a queued request.
type RequestStatus int

// Request status values.
const (
	StatusPending   RequestStatus = iota // Queued, not yet complete
	StatusSuccess                        // All bytes transferred
	StatusError                          // Failed with an unclassified error
	StatusStall                          // Endpoint stalled
	StatusTimeout                        // Hardware handshake timed out
	StatusCancelled                      // Removed by Dequeue
	StatusOverrun                        // Host sent more than Length
	StatusShutdown                       // Flushed by endpoint disable
)

// String returns a string representation of the request status.
func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusStall:
		return "stall"
	case StatusTimeout:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	case StatusOverrun:
		return "overrun"
	case StatusShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error returns the sentinel error matching the status, or nil for
// success and pending.
func (s RequestStatus) Error() error {
	switch s {
	case StatusPending, StatusSuccess:
		return nil
	case StatusStall:
		return ErrStall
	case StatusTimeout:
		return ErrTimeout
	case StatusCancelled:
		return ErrCancelled
	case StatusOverrun:
		return ErrOverrun
	case StatusShutdown:
		return ErrShutdown
	default:
		return ErrProtocol
	}
}

// StatusFromError maps an error returned by a transfer primitive to the
// status recorded on the request.
func StatusFromError(err error) RequestStatus {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrStall):
		return StatusStall
	case errors.Is(err, ErrTimeout):
		return StatusTimeout
	case errors.Is(err, ErrCancelled):
		return StatusCancelled
	case errors.Is(err, ErrOverrun):
		return StatusOverrun
	case errors.Is(err, ErrShutdown):
		return StatusShutdown
	default:
		return StatusError
	}
}
