/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

type Error struct {
	Stack      pkgerrors.StackTrace
	InnerError error
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.InnerError == nil {
		return fmt.Sprintf(" code %s.message %s \nstack %s", e.Code, e.Message, e.GetStackString())
	}
	return fmt.Sprintf("error %s code %s message %s \nstack %s", e.InnerError.Error(), e.Code, e.Message, e.GetStackString())
}

func (e *Error) Unwrap() error {
	return e.InnerError
}

func (e *Error) GetTopStackString() string {
	if len(e.Stack) == 0 {
		return ""
	}
	return frameString(e.Stack[0])
}

func (e *Error) GetStackString() string {
	result := ""
	for _, frame := range e.Stack {
		result = fmt.Sprintf("%s%s\n", result, frameString(frame))
	}
	return result
}

func frameString(frame pkgerrors.Frame) string {
	str := fmt.Sprintf("%+v", frame)
	if idx := strings.Index(str, "\n\t"); idx >= 0 {
		return fmt.Sprintf("%s %s", str[idx+2:], str[:idx])
	}
	return str
}

func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) WithMessage(message string) *Error {
	e.Message = message
	return e
}

func (e *Error) WithMessagef(message string, args ...interface{}) *Error {
	e.Message = fmt.Sprintf(message, args...)
	return e
}

func (e *Error) WithError(err error) *Error {
	e.InnerError = err
	return e
}

func NewError() *Error {
	return newError(1)
}

func newError(callerSkip int) *Error {
	return &Error{
		Stack:      callers(callerSkip + 1),
		InnerError: nil,
		Code:       "",
		Message:    "",
	}
}

func WrapError(err error, message, code string) *Error {
	return newError(1).WithCode(code).WithMessage(message).WithError(err)
}

func WrapMessage(message, code string) *Error {
	return newError(1).WithCode(code).WithMessage(message)
}

func callers(callerSkip int) pkgerrors.StackTrace {
	tracer, ok := pkgerrors.New("").(stackTracer)
	if !ok {
		return nil
	}
	stack := tracer.StackTrace()
	// drop the frames inside this package
	if len(stack) > callerSkip {
		stack = stack[callerSkip:]
	}
	return stack
}
