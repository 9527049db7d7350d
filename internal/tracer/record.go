package tracer

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/yousuf/tracebyte/internal/location"
	"github.com/yousuf/tracebyte/internal/protocol"
)

// Kind is the type tag in position 0 of a wire record
type Kind string

const (
	KindFrame       Kind = "frame"
	KindEnter       Kind = "enter"
	KindExit        Kind = "exit"
	KindDOMMutation Kind = "dom-mutation"
	KindEvent       Kind = "event"
)

// Record is one trace record. Records are structs in Go and only become
// positional arrays at the wire boundary, through Positional and
// DecodeRecord.
type Record interface {
	Kind() Kind
	Positional() []any
}

// Frame describes a function once per session. Later records refer to it by
// its index among the session's frames.
//
// Wire: [type, implementation, name, sourceId, line, column, url]
type Frame struct {
	Implementation string
	Name           string
	SourceID       string
	Line           int
	Column         int
	URL            string
}

func (Frame) Kind() Kind { return KindFrame }

func (f Frame) Positional() []any {
	return []any{string(KindFrame), f.Implementation, f.Name, f.SourceID, f.Line, f.Column, f.URL}
}

// Location returns where the frame starts in the running code
func (f Frame) Location() location.GeneratedLocation {
	return location.NewGenerated(location.SourceRef{ID: f.SourceID, Href: f.URL}, f.Line).WithColumn(f.Column)
}

// Header is the common prefix of every record but Frame
type Header struct {
	Prefix     string
	FrameIndex int
	Timestamp  float64
	Depth      int
}

func (h Header) positional(kind Kind) []any {
	return []any{string(kind), h.Prefix, h.FrameIndex, h.Timestamp, h.Depth}
}

// FrameEnter is a function call.
//
// Wire: [type, prefix, frameIndex, timestamp, depth, args, argNames]
type FrameEnter struct {
	Header
	Args     []any
	ArgNames []string
}

func (FrameEnter) Kind() Kind { return KindEnter }

func (e FrameEnter) Positional() []any {
	return append(e.positional(KindEnter), e.Args, e.ArgNames)
}

// FrameExit is a function return, throw or await.
//
// Wire: [type, prefix, frameIndex, timestamp, depth, parentFrameId, returnedValue, why]
type FrameExit struct {
	Header
	ParentFrameID string
	ReturnedValue any
	Why           string
}

func (FrameExit) Kind() Kind { return KindExit }

func (e FrameExit) Positional() []any {
	return append(e.positional(KindExit), e.ParentFrameID, e.ReturnedValue, e.Why)
}

// DOMMutation is a change to the document made by traced code.
//
// Wire: [type, prefix, frameIndex, timestamp, depth, mutationType, element]
type DOMMutation struct {
	Header
	MutationType string
	Element      any
}

func (DOMMutation) Kind() Kind { return KindDOMMutation }

func (m DOMMutation) Positional() []any {
	return append(m.positional(KindDOMMutation), m.MutationType, m.Element)
}

// Event is a DOM event dispatched to traced code.
//
// Wire: [type, prefix, frameIndex, timestamp, depth, eventName]
type Event struct {
	Header
	EventName string
}

func (Event) Kind() Kind { return KindEvent }

func (e Event) Positional() []any {
	return append(e.positional(KindEvent), e.EventName)
}

var recordLengths = map[Kind]int{
	KindFrame:       7,
	KindEnter:       7,
	KindExit:        8,
	KindDOMMutation: 7,
	KindEvent:       6,
}

// DecodeRecord converts a positional wire array back into a Record. Numbers
// may be any Go numeric type, as produced by JSON or msgpack decoders.
func DecodeRecord(fields []any) (Record, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty trace record")
	}
	tag, ok := fields[0].(string)
	if !ok {
		return nil, fmt.Errorf("trace record type tag is %T, not a string", fields[0])
	}
	kind := Kind(tag)
	want, ok := recordLengths[kind]
	if !ok {
		return nil, fmt.Errorf("unknown trace record type %q", tag)
	}
	if len(fields) < want {
		return nil, fmt.Errorf("%s record has %d fields, expected %d", kind, len(fields), want)
	}

	d := &decoder{fields: fields}
	if kind == KindFrame {
		f := Frame{
			Implementation: d.str(1),
			Name:           d.str(2),
			SourceID:       d.str(3),
			Line:           d.integer(4),
			Column:         d.integer(5),
			URL:            d.str(6),
		}
		return f, d.err
	}

	h := Header{
		Prefix:     d.str(1),
		FrameIndex: d.integer(2),
		Timestamp:  d.float(3),
		Depth:      d.integer(4),
	}
	var r Record
	switch kind {
	case KindEnter:
		r = FrameEnter{Header: h, Args: d.list(5), ArgNames: d.stringList(6)}
	case KindExit:
		r = FrameExit{Header: h, ParentFrameID: d.str(5), ReturnedValue: fields[6], Why: d.str(7)}
	case KindDOMMutation:
		r = DOMMutation{Header: h, MutationType: d.str(5), Element: fields[6]}
	case KindEvent:
		r = Event{Header: h, EventName: d.str(5)}
	}
	return r, d.err
}

// decoder reads typed positions and keeps the first error
type decoder struct {
	fields []any
	err    error
}

func (d *decoder) fail(i int, want string) {
	if d.err == nil {
		d.err = fmt.Errorf("trace record field %d is %T, expected %s", i, d.fields[i], want)
	}
}

func (d *decoder) str(i int) string {
	switch v := d.fields[i].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		d.fail(i, "string")
		return ""
	}
}

func (d *decoder) float(i int) float64 {
	if d.fields[i] == nil {
		return 0
	}
	f, ok := protocol.ToFloat(d.fields[i])
	if !ok {
		d.fail(i, "number")
	}
	return f
}

func (d *decoder) integer(i int) int {
	return int(d.float(i))
}

func (d *decoder) list(i int) []any {
	switch v := d.fields[i].(type) {
	case nil:
		return nil
	case []any:
		return v
	default:
		d.fail(i, "array")
		return nil
	}
}

func (d *decoder) stringList(i int) []string {
	items := d.list(i)
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for j, item := range items {
		s, ok := item.(string)
		if !ok {
			d.fail(i, "array of strings")
			return nil
		}
		out[j] = s
	}
	return out
}

// MarshalRecordJSON encodes r as its positional JSON array
func MarshalRecordJSON(r Record) ([]byte, error) {
	return json.Marshal(r.Positional())
}

// UnmarshalRecordJSON decodes a positional JSON array
func UnmarshalRecordJSON(data []byte) (Record, error) {
	var fields []any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace record: %w", err)
	}
	return DecodeRecord(fields)
}

// MarshalRecordMsgpack encodes r as a positional msgpack array
func MarshalRecordMsgpack(r Record) ([]byte, error) {
	return msgpack.Marshal(r.Positional())
}

// UnmarshalRecordMsgpack decodes a positional msgpack array
func UnmarshalRecordMsgpack(data []byte) (Record, error) {
	var fields []any
	if err := msgpack.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace record: %w", err)
	}
	return DecodeRecord(fields)
}
