package udc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/usbf/pkg"
)

// Queue submits req on the endpoint. The request is rejected, and not
// queued, when it is incomplete, already queued, the endpoint is disabled
// or the controller is suspended. A zero-length request completes before
// Queue returns.
func (ep *Endpoint) Queue(req *Request) error {
	switch {
	case req == nil || req.Complete == nil:
		return fmt.Errorf("%s: request without completion: %w", ep, pkg.ErrInvalidRequest)
	case req.Length < 0 || len(req.Buf) < req.Length:
		return fmt.Errorf("%s: buffer holds %d of %d bytes: %w",
			ep, len(req.Buf), req.Length, pkg.ErrInvalidRequest)
	case req.ep != nil:
		return fmt.Errorf("%s: request already queued on %s: %w", ep, req.ep, pkg.ErrInvalidRequest)
	case !ep.enabled:
		return fmt.Errorf("%s: endpoint disabled: %w", ep, pkg.ErrInvalidRequest)
	case ep.c.state == StateSuspended:
		return fmt.Errorf("%s: controller suspended: %w", ep, pkg.ErrInvalidRequest)
	}

	req.Actual = 0
	req.Err = nil
	req.in = ep.in

	if req.Length == 0 {
		req.Status = pkg.StatusSuccess
		pkg.LogTrace(pkg.ComponentQueue, "zero-length request", "ep", ep.index)
		req.Complete(ep, req)
		return nil
	}

	req.Status = pkg.StatusPending
	req.ep = ep
	ep.queue.Add(req)
	pkg.LogTrace(pkg.ComponentQueue, "queued",
		"ep", ep.index, "len", req.Length, "in", req.in, "depth", ep.queue.Size())

	// An idle generic endpoint starts right away: IN data is written and
	// an OUT packet that arrived before the request is drained. Endpoint 0
	// is driven by the dispatcher.
	if ep.kind == KindGeneric && !ep.polled && ep.queue.Size() == 1 {
		if err := ep.processHead(); err != nil {
			pkg.LogWarn(pkg.ComponentQueue, "start failed", "ep", ep.index, "error", err)
		}
	}
	return nil
}

// Dequeue cancels a pending request queued on this endpoint. Its
// completion runs once with pkg.StatusCancelled. Dequeue of a request that
// already completed does nothing.
func (ep *Endpoint) Dequeue(req *Request) error {
	if req == nil {
		return fmt.Errorf("%s: nil request: %w", ep, pkg.ErrInvalidRequest)
	}
	if req.ep == nil && req.Status != pkg.StatusPending {
		return nil
	}
	if req.ep != ep || ep.queue.IndexOf(req) < 0 {
		return fmt.Errorf("%s: request not queued here: %w", ep, pkg.ErrInvalidRequest)
	}
	ep.complete(req, pkg.StatusCancelled, nil)
	return nil
}

func (ep *Endpoint) head() *Request {
	v, ok := ep.queue.Get(0)
	if !ok {
		return nil
	}
	return v.(*Request)
}

// complete removes req from the queue and runs its completion.
func (ep *Endpoint) complete(req *Request, status pkg.RequestStatus, err error) {
	if i := ep.queue.IndexOf(req); i >= 0 {
		ep.queue.Remove(i)
	}
	req.ep = nil
	req.Status = status
	if err == nil {
		err = status.Error()
	}
	req.Err = err

	pkg.LogTrace(pkg.ComponentQueue, "complete",
		"ep", ep.index, "status", status, "actual", req.Actual, "len", req.Length)
	req.Complete(ep, req)
}

// flush completes every request queued when it is called with status.
// Requests queued again by a completion stay queued.
func (ep *Endpoint) flush(status pkg.RequestStatus) {
	for _, v := range ep.queue.Values() {
		if req := v.(*Request); req.ep == ep {
			ep.complete(req, status, nil)
		}
	}
}

// processHead advances the head request. IN requests are written out
// completely and the next one is started; an OUT request takes at most
// one packet per call and stays at the head until it completes.
func (ep *Endpoint) processHead() error {
	var errs []error
	for req := ep.head(); req != nil; req = ep.head() {
		var done bool
		var err error
		if req.in {
			done, err = ep.send(req)
		} else {
			done, err = ep.receive(req)
		}
		if err != nil {
			errs = append(errs, err)
		}
		if !done {
			break
		}
		ep.complete(req, pkg.StatusFromError(err), err)
		if !req.in {
			break
		}
	}
	return errors.Join(errs...)
}

// send writes req to the IN buffer packet by packet. A request always
// finishes in one call; a handshake timeout ends it with the error.
func (ep *Endpoint) send(req *Request) (bool, error) {
	mp := ep.maxPacket
	for req.Actual < req.Length {
		n := min(mp, req.Length-req.Actual)
		if err := ep.writePacket(req.Buf[req.Actual : req.Actual+n]); err != nil {
			return true, err
		}
		req.Actual += n
		ep.stats.TxPackets++
		ep.stats.TxBytes += n
	}
	if req.Zero && req.Length%mp == 0 {
		if err := ep.writePacket(nil); err != nil {
			return true, err
		}
		ep.stats.TxPackets++
		ep.stats.TxZLPs++
	}
	return true, nil
}

// receive drains one OUT packet into req. It reports completion when the
// request is full or the packet was short.
func (ep *Endpoint) receive(req *Request) (bool, error) {
	f := ep.fld
	if ep.blk.IsSet(f.outNull) {
		ep.blk.Ack(f.outNull)
		ep.stats.RxPackets++
		return true, nil
	}
	if ep.blk.IsSet(f.outEmpty) {
		return false, nil
	}

	n := int(ep.blk.Get(f.length))
	room := req.Length - req.Actual
	var word [4]byte
	for off := 0; off < n; off += 4 {
		binary.LittleEndian.PutUint32(word[:], ep.blk.Read(f.read))
		if off < room {
			copy(req.Buf[req.Actual+off:req.Actual+room], word[:min(4, n-off)])
		}
	}
	ep.stats.RxPackets++
	ep.stats.RxBytes += n

	if n > room {
		req.Actual = req.Length
		return true, fmt.Errorf("%s: %d byte packet, %d bytes left: %w", ep, n, room, pkg.ErrOverrun)
	}
	req.Actual += n
	return req.Actual == req.Length || n < ep.maxPacket, nil
}

// writePacket commits one packet of at most max packet bytes. A nil data
// writes a zero-length packet.
func (ep *Endpoint) writePacket(data []byte) error {
	f := ep.fld
	if err := ep.blk.PollField(ep.c.cfg.Retries, f.inEmpty); err != nil {
		return fmt.Errorf("%s: in buffer busy: %w", ep, err)
	}

	words := len(data) / 4
	for i := range words {
		ep.blk.Write(f.write, binary.LittleEndian.Uint32(data[4*i:]))
	}
	ctrl := ep.blk.Read(f.dend.Reg()) &^ f.dw.Mask()
	if rem := len(data) % 4; rem != 0 {
		var tail [4]byte
		copy(tail[:], data[4*words:])
		ep.blk.Write(f.write, binary.LittleEndian.Uint32(tail[:]))
		ctrl |= f.dw.Bits(uint32(rem))
	}
	ep.blk.Write(f.dend.Reg(), ctrl|f.dend.Mask())

	pkg.LogTrace(pkg.ComponentEndpoint, "packet", "ep", ep.index, "len", len(data))
	return nil
}
