// Package regs is the register access layer of the USBF device controller.
//
// A [Bus] exposes the controller's register window. [Field] values name
// register fields symbolically; their offset, bit position and width live
// in one table:
//
//	top := regs.Top(bus)
//	top.Set(regs.CtrlConf)
//	if top.IsSet(regs.StatusSpeedMode) { ... }
//	top.Ack(regs.EP0SetupInt) // write-1-to-clear
//
// Hardware handshakes go through [Poll], which gives up after a fixed
// number of attempts and reports [github.com/ardnew/usbf/pkg.ErrTimeout].
package regs
