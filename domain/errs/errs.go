// Package errs is the error taxonomy of the exchange core.
//
// Every failure the core reports is a *Sentinel (comparable with errors.Is)
// or an *Error that wraps one and carries the offending values. Both expose a
// Kind so adapters can map failures without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindState
	KindSolvency
	KindMarket
	KindAuthorization
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindSolvency:
		return "solvency"
	case KindMarket:
		return "market"
	case KindAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

// Classified is implemented by every error the core returns.
type Classified interface {
	error
	Kind() Kind
	Code() string
}

// KindOf classifies err, looking through wrapping.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}

// CodeOf returns the stable code of err ("InsufficientBalance"), or "" for
// foreign errors.
func CodeOf(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// ---------- Sentinel ----------

type Sentinel struct {
	kind Kind
	code string
}

func New(kind Kind, code string) *Sentinel {
	return &Sentinel{kind: kind, code: code}
}

func (s *Sentinel) Error() string { return s.code }
func (s *Sentinel) Kind() Kind    { return s.kind }
func (s *Sentinel) Code() string  { return s.code }

// With attaches structured detail to the sentinel.
func (s *Sentinel) With(fields ...Field) *Error {
	return &Error{sentinel: s, Fields: fields}
}

// ---------- Detailed error ----------

type Field struct {
	Key   string
	Value any
}

func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

type Error struct {
	sentinel *Sentinel
	Fields   []Field
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.sentinel.code
	}
	var b strings.Builder
	b.WriteString(e.sentinel.code)
	b.WriteString(":")
	for _, f := range e.Fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.sentinel }
func (e *Error) Kind() Kind    { return e.sentinel.kind }
func (e *Error) Code() string  { return e.sentinel.code }

// Value returns the detail recorded under key.
func (e *Error) Value(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Details flattens the fields into a map, for transport adapters.
func Details(err error) map[string]string {
	var e *Error
	if !errors.As(err, &e) || len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Key] = fmt.Sprint(f.Value)
	}
	return out
}

// ---------- Shared sentinels ----------

var (
	ErrZeroAmount     = New(KindValidation, "ZeroAmount")
	ErrAmountTooLarge = New(KindValidation, "AmountTooLarge")
	ErrInvalidToken   = New(KindValidation, "InvalidToken")
	ErrUnauthorized   = New(KindAuthorization, "Unauthorized")
)
