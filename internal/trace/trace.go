// Package trace records what a simulated session did: the result of each
// scenario step, the bus log of the simulator and the final endpoint
// counters. A trace is written as JSON, YAML or CBOR.
package trace

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/sim"
	"github.com/ardnew/usbf/udc"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCBOR = "cbor"
)

// Bytes is binary data rendered as hex in text formats and as a byte
// string in CBOR.
type Bytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Bytes) UnmarshalText(text []byte) error {
	out := make([]byte, hex.DecodedLen(len(text)))
	if _, err := hex.Decode(out, text); err != nil {
		return fmt.Errorf("trace bytes: %w", err)
	}
	*b = out
	return nil
}

// Trace is the record of one session.
type Trace struct {
	Scenario  string     `json:"scenario" yaml:"scenario" cbor:"1,keyasint"`
	Steps     []Step     `json:"steps" yaml:"steps" cbor:"2,keyasint"`
	Records   []Record   `json:"records" yaml:"records" cbor:"3,keyasint"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints" cbor:"4,keyasint"`
}

// Step is the outcome of one scenario step.
type Step struct {
	Index int    `json:"index" yaml:"index" cbor:"1,keyasint"`
	Op    string `json:"op" yaml:"op" cbor:"2,keyasint"`
	OK    bool   `json:"ok" yaml:"ok" cbor:"3,keyasint"`
	Error string `json:"error,omitempty" yaml:"error,omitempty" cbor:"4,keyasint,omitempty"`
	Reply Bytes  `json:"reply,omitempty" yaml:"reply,omitempty" cbor:"5,keyasint,omitempty"`
}

// Record is one simulator bus event.
type Record struct {
	Seq  int    `json:"seq" yaml:"seq" cbor:"1,keyasint"`
	Kind string `json:"kind" yaml:"kind" cbor:"2,keyasint"`
	EP   int    `json:"ep" yaml:"ep" cbor:"3,keyasint"`
	Data Bytes  `json:"data,omitempty" yaml:"data,omitempty" cbor:"4,keyasint,omitempty"`
	Note string `json:"note,omitempty" yaml:"note,omitempty" cbor:"5,keyasint,omitempty"`
}

// Endpoint is the final state of one controller endpoint.
type Endpoint struct {
	Index      int    `json:"index" yaml:"index" cbor:"1,keyasint"`
	Kind       string `json:"kind" yaml:"kind" cbor:"2,keyasint"`
	Address    uint8  `json:"address" yaml:"address" cbor:"3,keyasint"`
	Enabled    bool   `json:"enabled" yaml:"enabled" cbor:"4,keyasint"`
	Halted     bool   `json:"halted" yaml:"halted" cbor:"5,keyasint"`
	MaxPacket  int    `json:"max_packet" yaml:"max_packet" cbor:"6,keyasint"`
	Pending    int    `json:"pending" yaml:"pending" cbor:"7,keyasint"`
	TxPackets  int    `json:"tx_packets" yaml:"tx_packets" cbor:"8,keyasint"`
	TxBytes    int    `json:"tx_bytes" yaml:"tx_bytes" cbor:"9,keyasint"`
	RxPackets  int    `json:"rx_packets" yaml:"rx_packets" cbor:"10,keyasint"`
	RxBytes    int    `json:"rx_bytes" yaml:"rx_bytes" cbor:"11,keyasint"`
	StatusZLPs int    `json:"status_zlps" yaml:"status_zlps" cbor:"12,keyasint"`
	Stalls     int    `json:"stalls" yaml:"stalls" cbor:"13,keyasint"`
}

// New starts an empty trace for scenario.
func New(scenario string) *Trace {
	return &Trace{Scenario: scenario}
}

// AddStep appends the outcome of a step described by op.
func (t *Trace) AddStep(op string, reply []byte, err error) {
	st := Step{Index: len(t.Steps) + 1, Op: op, OK: err == nil}
	if err != nil {
		st.Error = err.Error()
	}
	if len(reply) > 0 {
		st.Reply = append(Bytes(nil), reply...)
	}
	t.Steps = append(t.Steps, st)
}

// Failed returns the number of steps that did not succeed.
func (t *Trace) Failed() int {
	n := 0
	for _, st := range t.Steps {
		if !st.OK {
			n++
		}
	}
	return n
}

// Finish copies the bus log of s and the endpoint state of c.
func (t *Trace) Finish(s *sim.Sim, c *udc.Controller) {
	t.Records = Records(s.Events())
	t.Endpoints = Endpoints(c)
}

// Records converts simulator events.
func Records(events []sim.Event) []Record {
	out := make([]Record, len(events))
	for i, e := range events {
		out[i] = Record{
			Seq:  e.Seq,
			Kind: string(e.Kind),
			EP:   e.EP,
			Data: Bytes(e.Data),
			Note: e.Note,
		}
	}
	return out
}

// Endpoints snapshots every endpoint of c.
func Endpoints(c *udc.Controller) []Endpoint {
	eps := c.Endpoints()
	out := make([]Endpoint, len(eps))
	for i, ep := range eps {
		st := ep.Stats()
		out[i] = Endpoint{
			Index:      ep.Index(),
			Kind:       ep.Kind().String(),
			Address:    ep.Address(),
			Enabled:    ep.Enabled(),
			Halted:     ep.Halted(),
			MaxPacket:  ep.MaxPacket(),
			Pending:    ep.Pending(),
			TxPackets:  st.TxPackets,
			TxBytes:    st.TxBytes,
			RxPackets:  st.RxPackets,
			RxBytes:    st.RxBytes,
			StatusZLPs: st.StatusZLPs,
			Stalls:     st.Stalls,
		}
	}
	return out
}

var cborMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// Encode writes t to w in format.
func Encode(w io.Writer, t *Trace, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return err
		}
		return enc.Close()
	case FormatCBOR:
		return cborMode.NewEncoder(w).Encode(t)
	default:
		return fmt.Errorf("trace format %q: %w", format, pkg.ErrNotSupported)
	}
}

// Decode reads a trace written by Encode.
func Decode(r io.Reader, format string) (*Trace, error) {
	var t Trace
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&t)
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&t)
	case FormatCBOR:
		err = cbor.NewDecoder(r).Decode(&t)
	default:
		return nil, fmt.Errorf("trace format %q: %w", format, pkg.ErrNotSupported)
	}
	if err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &t, nil
}
