package udc

import "github.com/ardnew/usbf/usb"

// FunctionDriver is the class or vendor driver bound above the controller.
type FunctionDriver interface {
	// Bind is called once by Controller.Bind after endpoint 0 is enabled.
	Bind(c *Controller) error

	// Setup receives every Setup packet the controller does not resolve
	// itself, plus SET_CONFIGURATION after the controller applied it. A
	// nil return means the request is accepted and any data stage reply
	// has been queued on endpoint 0. An error stalls endpoint 0.
	Setup(c *Controller, setup *usb.SetupPacket) error
}

// Disconnecter is implemented by drivers that want to know when the host
// goes away.
type Disconnecter interface {
	Disconnect(c *Controller)
}

// Suspender is implemented by drivers that want suspend notifications.
type Suspender interface {
	Suspend(c *Controller)
}

// Resumer is implemented by drivers that want resume notifications.
type Resumer interface {
	Resume(c *Controller)
}

// IRQ masks controller interrupt delivery around short critical sections.
type IRQ interface {
	// Disable masks delivery and reports whether it was enabled before.
	Disable() bool
	// Enable unmasks delivery.
	Enable()
}

type noIRQ struct{}

func (noIRQ) Disable() bool { return false }
func (noIRQ) Enable()       {}
