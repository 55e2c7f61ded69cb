package backend

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Timeout Kind = iota + 1
	Unreachable
	InvalidResponse
	Rejected
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Unreachable:
		return "unreachable"
	case InvalidResponse:
		return "invalid response"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error: ошибка вызова бэкенда. Code заполняется для Rejected значением
// error.kind из ответа (например "not_found").
type Error struct {
	Kind   Kind
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "backend " + e.Kind.String()
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable: повторяем только сетевые сбои и таймауты.
func (e *Error) Retryable() bool {
	return e.Kind == Timeout || e.Kind == Unreachable
}

// IsKind сообщает, является ли err ошибкой бэкенда указанного вида.
func IsKind(err error, kind Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}
