// Package message defines the unit of dispatch shared by the format registry
// and the handler dispatcher: a logical type string plus a concrete class
// identity that is opaque but comparable for equality.
package message

import "reflect"

// DefaultMessageType is the reserved logical type produced by the built-in
// default format's materialized message. It is fixed and distinct from any
// type an embedding application would register (Open Question ii).
const DefaultMessageType = "[Undetermined]"

// Message is the typed, post-decode object dispatched to handlers. Class
// returns the message's concrete runtime type, used by the handler
// dispatcher to enforce that a type's handlers all expect the same class
// (§3 Handler invariant) and to filter candidates at dispatch time.
type Message interface {
	// Type returns the logical message type used to bucket handlers.
	Type() string

	// Class returns the message's concrete class identity. Two different
	// formats may produce two different classes that share the same Type.
	Class() reflect.Type
}

// ClassOf returns the reflect.Type identity for a concrete Message value,
// suitable for comparison against Message.Class() or a handler's expected
// class. Exists so formats and handlers can share one definition of
// "concrete class identity" instead of each calling reflect.TypeOf directly.
func ClassOf(v any) reflect.Type {
	return reflect.TypeOf(v)
}

// DefaultMessage is produced by format.DefaultFormat when no registered
// format recognizes a packet. It carries the raw ascii-safe rendering of the
// packet for diagnostic purposes.
type DefaultMessage struct {
	Raw string
}

// Type implements Message.
func (DefaultMessage) Type() string { return DefaultMessageType }

// Class implements Message.
func (m DefaultMessage) Class() reflect.Type { return reflect.TypeOf(m) }
