// Package udc implements the control-transfer engine of the USBF device
// controller: the endpoint 0 state machine, per-endpoint request queues
// and the interrupt dispatcher that drives both through the registers of
// package regs.
//
// # Controller
//
// A [Controller] owns one register window. It is created in reset and
// brought up by binding a [FunctionDriver]:
//
//	c, err := udc.New(bus, udc.DefaultConfig())
//	if err != nil { ... }
//	if err := c.Bind(drv); err != nil { ... }
//	c.Pullup(true)
//
// The interrupt service routine calls [Controller.HandleInterrupts]. It
// clears the pending causes, updates device state for bus events and runs
// the endpoint handlers, endpoint 0 first.
//
// # Control transfers
//
// Endpoint 0 walks Idle, SetupAction, Data and Status. A Setup packet
// always restarts the machine and cancels whatever was queued for the
// transfer it replaces. SET_ADDRESS, SET_CONFIGURATION, GET_STATUS and the
// ENDPOINT_HALT feature are decoded here; every other request goes to the
// function driver's Setup, which answers by queuing a [Request] on
// endpoint 0 or rejects it with an error, stalling the endpoint.
//
// # Requests
//
// A [Request] completes exactly once through its Complete callback, with
// a [github.com/ardnew/usbf/pkg.RequestStatus] describing the outcome.
// IN transfers are split into max-packet packets; with Zero set, a
// transfer whose length is a multiple of the packet size ends with a
// zero-length packet. OUT transfers finish when the buffer is full or the
// host sends a short packet.
//
// # Concurrency
//
// A Controller is single-threaded. HandleInterrupts, Poll and all
// endpoint calls must run on one goroutine or be serialized by the caller.
// Hardware handshakes are bounded by Config.Retries and fail with
// pkg.ErrTimeout.
package udc
