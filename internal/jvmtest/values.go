// Package jvmtest executes generated class files in a small interpreter so
// tests can observe behavior without a JVM. It covers the instruction set
// the lowering emits and the handful of platform classes it references.
package jvmtest

import (
	"errors"
	"fmt"
	"strings"
)

// Value is a JVM value: int32 for int, short, byte, char and boolean;
// int64, float32 and float64 for the wide and floating types; nil, string,
// *Object or *Array for references.
type Value any

// Object is an instance of a loaded or platform class. Platform classes
// keep their state in Native.
type Object struct {
	Class  string // internal name
	Fields map[string]Value
	Native any
	id     int32
}

// Array is a JVM array with its descriptor ("[I", "[Ljava/lang/String;").
type Array struct {
	Type string
	Data []Value
}

// Elem returns the element descriptor.
func (a *Array) Elem() string { return a.Type[1:] }

// Sentinel errors for malformed programs. These are never catchable by the
// interpreted code.
var (
	ErrNoClass    = errors.New("class not found")
	ErrNoMethod   = errors.New("method not found")
	ErrBadCode    = errors.New("invalid bytecode")
	ErrStackDepth = errors.New("call stack too deep")
)

// Thrown is a Java exception escaping the interpreted code.
type Thrown struct {
	Exception *Object
}

func (t *Thrown) Error() string {
	if msg, ok := t.Exception.Fields[messageField].(string); ok {
		return fmt.Sprintf("%s: %s", dotted(t.Exception.Class), msg)
	}
	return dotted(t.Exception.Class)
}

// Class returns the internal name of the thrown exception's class.
func (t *Thrown) Class() string { return t.Exception.Class }

// Message returns the exception message, "" when it has none.
func (t *Thrown) Message() string {
	msg, _ := t.Exception.Fields[messageField].(string)
	return msg
}

const messageField = "$message"

func dotted(internal string) string { return strings.ReplaceAll(internal, "/", ".") }

// zero returns the default value of a field descriptor.
func zero(desc string) Value {
	switch desc[0] {
	case 'Z', 'B', 'C', 'S', 'I':
		return int32(0)
	case 'J':
		return int64(0)
	case 'F':
		return float32(0)
	case 'D':
		return float64(0)
	}
	return nil
}

// wide reports whether v occupies two local slots.
func wide(v Value) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

// Bool converts an interpreted boolean result.
func Bool(v Value) bool {
	i, _ := v.(int32)
	return i != 0
}

// Int converts a Go int to an interpreted int.
func Int(i int) Value { return int32(i) }
