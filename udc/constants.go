package udc

import "fmt"

// State is the USB device state (USB 2.0 section 9.1).
type State uint8

// Device states.
const (
	StateNotAttached State = iota
	StatePowered
	StateAddress
	StateConfigured
	StateSuspended
)

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateNotAttached:
		return "not-attached"
	case StatePowered:
		return "powered"
	case StateAddress:
		return "address"
	case StateConfigured:
		return "configured"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("state(%d)", s)
	}
}

// Speed is the negotiated bus speed.
type Speed uint8

// Bus speeds.
const (
	SpeedUnknown Speed = iota
	SpeedFull
	SpeedHigh
)

// String returns a human-readable speed description.
func (s Speed) String() string {
	switch s {
	case SpeedUnknown:
		return "unknown"
	case SpeedFull:
		return "full"
	case SpeedHigh:
		return "high"
	default:
		return fmt.Sprintf("speed(%d)", s)
	}
}

// Stage is the phase of the control transfer on endpoint 0.
type Stage uint8

// Control transfer stages.
const (
	StageIdle Stage = iota
	StageSetupAction
	StageData
	StageStatus
)

// String returns a human-readable stage description.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageSetupAction:
		return "setup"
	case StageData:
		return "data"
	case StageStatus:
		return "status"
	default:
		return fmt.Sprintf("stage(%d)", s)
	}
}

// Outcome is how the decoder resolved the last Setup packet.
type Outcome uint8

// Setup outcomes.
const (
	OutcomeIdle Outcome = iota
	OutcomeFinish
	OutcomeStall
)

// String returns a human-readable outcome description.
func (o Outcome) String() string {
	switch o {
	case OutcomeIdle:
		return "idle"
	case OutcomeFinish:
		return "finish"
	case OutcomeStall:
		return "stall"
	default:
		return fmt.Sprintf("outcome(%d)", o)
	}
}

// Kind selects the endpoint behavior.
type Kind uint8

// Endpoint kinds.
const (
	KindControl Kind = iota // endpoint 0
	KindGeneric             // bulk, interrupt or isochronous endpoint 1..n
)

// String returns a human-readable kind description.
func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindGeneric:
		return "generic"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Default endpoint packet sizes.
const (
	DefaultEP0MaxPacket = 64
	DefaultEPXMaxPacket = 512

	// fullSpeedBulkMax caps generic endpoints after a full-speed
	// negotiation.
	fullSpeedBulkMax = 64
)
