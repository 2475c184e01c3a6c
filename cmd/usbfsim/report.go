package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/ardnew/usbf/internal/trace"
)

// maxReply is the number of reply bytes shown per step.
const maxReply = 16

type reporter struct {
	w io.Writer
}

// terminal reports whether w is a terminal and its width.
func (r reporter) terminal() (int, bool) {
	f, ok := r.w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0, true
	}
	return width, true
}

func (r reporter) table(header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(r.w)
	t.SetHeader(header)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetAutoFormatHeaders(false)

	width, tty := r.terminal()
	if !tty {
		t.SetBorder(false)
		t.SetColumnSeparator(" ")
		t.SetCenterSeparator(" ")
		t.SetColWidth(100)
		return t
	}
	if width > 0 {
		t.SetColWidth(width / 2)
	}
	return t
}

func (r reporter) steps(tr *trace.Trace) {
	t := r.table([]string{"#", "Step", "Result", "Reply"})
	for _, st := range tr.Steps {
		result := "ok"
		if !st.OK {
			result = "FAIL: " + st.Error
		}
		t.Append([]string{strconv.Itoa(st.Index), st.Op, result, reply(st.Reply)})
	}
	t.Render()
}

func reply(b []byte) string {
	if len(b) <= maxReply {
		return fmt.Sprintf("% X", b)
	}
	return fmt.Sprintf("% X ... (%d bytes)", b[:maxReply], len(b))
}

func (r reporter) endpoints(tr *trace.Trace) {
	t := r.table([]string{"EP", "Kind", "Addr", "State", "MaxPkt", "Pending",
		"TX pkts", "TX bytes", "RX pkts", "RX bytes", "Status", "Stalls"})
	for _, ep := range tr.Endpoints {
		if ep.Kind != "control" && !ep.Enabled && ep.TxPackets+ep.RxPackets == 0 {
			continue
		}
		state := "disabled"
		switch {
		case ep.Halted:
			state = "halted"
		case ep.Enabled:
			state = "enabled"
		}
		t.Append([]string{
			strconv.Itoa(ep.Index), ep.Kind, fmt.Sprintf("0x%02X", ep.Address), state,
			strconv.Itoa(ep.MaxPacket), strconv.Itoa(ep.Pending),
			strconv.Itoa(ep.TxPackets), strconv.Itoa(ep.TxBytes),
			strconv.Itoa(ep.RxPackets), strconv.Itoa(ep.RxBytes),
			strconv.Itoa(ep.StatusZLPs), strconv.Itoa(ep.Stalls),
		})
	}
	t.Render()
}

func (r reporter) events(tr *trace.Trace) {
	for _, rec := range tr.Records {
		line := fmt.Sprintf("#%-4d %-11s ep%-2d", rec.Seq, rec.Kind, rec.EP)
		if len(rec.Data) > 0 {
			line += " [" + reply(rec.Data) + "]"
		}
		if rec.Note != "" {
			line += " " + rec.Note
		}
		fmt.Fprintln(r.w, line)
	}
}

func (r reporter) summary(tr *trace.Trace) {
	fmt.Fprintf(r.w, "%s: %d steps, %d failed\n", tr.Scenario, len(tr.Steps), tr.Failed())
}
