package lower

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors wrapped by *Error. Match them with errors.Is.
var (
	ErrUnresolved    = errors.New("unresolved reference")
	ErrNarrowing     = errors.New("narrowing conversion requires a cast")
	ErrTypeMismatch  = errors.New("type mismatch")
	ErrVoidValue     = errors.New("void expression used as a value")
	ErrDuplicateName = errors.New("duplicate local name")
	ErrDuplicateKey  = errors.New("duplicate switch key")
	ErrMissingReturn = errors.New("missing return")
	ErrUnsupported   = errors.New("unsupported construct")
)

// Error is a lowering failure with the declared type, member and IR node it
// occurred in.
type Error struct {
	Type   string // binary name of the declared type
	Member string // method name and descriptor
	Node   string // IR node kind, empty for method-level failures
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Type)
	if e.Member != "" {
		b.WriteByte('.')
		b.WriteString(e.Member)
	}
	if e.Node != "" {
		fmt.Fprintf(&b, " [%s]", e.Node)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// nodeName returns "LocalVar" for a model.LocalVar.
func nodeName(node any) string {
	if node == nil {
		return ""
	}
	name := fmt.Sprintf("%T", node)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
