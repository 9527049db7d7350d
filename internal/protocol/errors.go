package protocol

import (
	"errors"
	"fmt"
)

// Error is a protocol-level error as it travels on the wire: {error, message}.
// Two *Error values match under errors.Is when their names are equal.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Is matches protocol errors by name
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Name == e.Name
}

// WireName implements wireError
func (e *Error) WireName() string { return e.Name }

// WireMessage implements wireError
func (e *Error) WireMessage() string { return e.Message }

// Errorf builds a protocol error with a formatted message
func Errorf(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrNoSuchActor            = &Error{Name: "noSuchActor"}
	ErrUnrecognizedPacketType = &Error{Name: "unrecognizedPacketType"}
	ErrMissingParameter       = &Error{Name: "missingParameter"}
	ErrBadParameterType       = &Error{Name: "badParameterType"}
	ErrConnectionClosed       = &Error{Name: "connectionClosed"}
	ErrUnknown                = &Error{Name: "unknownError"}

	// ErrMissingTypeName is returned when an actor without an id is added to a
	// pool and declares no type name to allocate one from.
	ErrMissingTypeName = errors.New("actor has neither an id nor a type name")
)

// wireError is implemented by errors that know their protocol name
type wireError interface {
	error
	WireName() string
	WireMessage() string
}

// ErrorPacket converts err into a {from, error, message} packet
func ErrorPacket(from string, err error) Packet {
	name, msg := ErrUnknown.Name, err.Error()
	var we wireError
	if errors.As(err, &we) {
		name, msg = we.WireName(), we.WireMessage()
	}
	return Packet{"from": from, "error": name, "message": msg}
}
