package gadget

import (
	"fmt"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/udc"
	"github.com/ardnew/usbf/usb"
)

// loopback echoes every OUT transfer back on the IN endpoint. One
// transfer is in flight at a time: the OUT request is queued again once
// its echo completed. An OUT transfer ends with a short packet, a
// zero-length packet or a full buffer, and the echo repeats that framing.
// A lone zero-length packet is not echoed.
type loopback struct {
	g       *Gadget
	in, out *udc.Endpoint

	rxBuf []byte
	txBuf []byte
	rx    udc.Request
	tx    udc.Request

	running bool
}

func newLoopback(g *Gadget, size int) *loopback {
	return &loopback{
		g:     g,
		rxBuf: make([]byte, size),
		txBuf: make([]byte, size),
	}
}

func (l *loopback) descriptors(speed udc.Speed) [2]usb.EndpointDescriptor {
	mp := l.g.bulkMaxPacket(speed)
	return [2]usb.EndpointDescriptor{
		{EndpointAddress: l.g.cfg.LoopbackIn, Attributes: usb.XferBulk, MaxPacketSize: mp},
		{EndpointAddress: l.g.cfg.LoopbackOut, Attributes: usb.XferBulk, MaxPacketSize: mp},
	}
}

// start enables both endpoints and arms the OUT side.
func (l *loopback) start(speed udc.Speed) error {
	c := l.g.c
	descs := l.descriptors(speed)
	l.in = c.Endpoint(descs[0].Number())
	l.out = c.Endpoint(descs[1].Number())
	for i, ep := range []*udc.Endpoint{l.in, l.out} {
		desc := descs[i]
		if err := ep.Enable(&desc); err != nil {
			l.stop()
			return fmt.Errorf("loopback: %w", err)
		}
	}
	l.running = true
	pkg.LogDebug(pkg.ComponentGadget, "loopback started", "in", l.in, "out", l.out)
	return l.receive()
}

// stop disables both endpoints. Pending requests complete with a shutdown
// status and are not queued again.
func (l *loopback) stop() {
	l.running = false
	for _, ep := range []*udc.Endpoint{l.in, l.out} {
		if ep != nil {
			_ = ep.Disable()
		}
	}
}

func (l *loopback) receive() error {
	l.rx = udc.Request{
		Buf:      l.rxBuf,
		Length:   len(l.rxBuf),
		Complete: l.received,
	}
	return l.out.Queue(&l.rx)
}

func (l *loopback) received(_ *udc.Endpoint, req *udc.Request) {
	if !l.running || req.Status != pkg.StatusSuccess {
		pkg.LogDebug(pkg.ComponentGadget, "loopback receive ended", "status", req.Status)
		return
	}
	n := copy(l.txBuf, req.Buf[:req.Actual])
	l.tx = udc.Request{
		Buf:      l.txBuf[:n],
		Length:   n,
		Zero:     n < len(l.rxBuf),
		Complete: l.sent,
	}
	if err := l.in.Queue(&l.tx); err != nil {
		pkg.LogWarn(pkg.ComponentGadget, "loopback echo rejected", "error", err)
	}
}

func (l *loopback) sent(_ *udc.Endpoint, req *udc.Request) {
	st := &l.g.stats
	st.LoopbackTransfers++
	st.LoopbackBytes += req.Actual
	if !l.running || req.Status != pkg.StatusSuccess {
		pkg.LogDebug(pkg.ComponentGadget, "loopback send ended", "status", req.Status)
		return
	}
	if err := l.receive(); err != nil {
		pkg.LogWarn(pkg.ComponentGadget, "loopback receive rejected", "error", err)
	}
}
