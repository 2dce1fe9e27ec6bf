/*
 * Copyright (C) 2025-2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const HivePrefix = "Hive."

const StatusFailure = "Failure"

type StatusReason string

// Status mirrors the wire shape of a failed request.
type Status struct {
	Status  string       `json:"status,omitempty"`
	Code    int32        `json:"code,omitempty"`
	Reason  StatusReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`
	Kind    string       `json:"kind,omitempty"`
	Name    string       `json:"name,omitempty"`
}

type StatusError struct {
	ErrStatus Status
}

func (e *StatusError) Error() string {
	return e.ErrStatus.Message
}

func (e *StatusError) Status() Status {
	return e.ErrStatus
}

// ReasonForError returns the coded reason carried by err, or "" for plain errors.
func ReasonForError(err error) StatusReason {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.ErrStatus.Reason
	}
	return ""
}

// Entity kinds used for not-found reasons.
const (
	UserKind    = "User"
	ChannelKind = "Channel"
	JobKind     = "Job"
	FileKind    = "File"
)

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00-99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Auth and bearer-token errors
   02: Job errors
   03: Channel errors
   04: File-transfer errors
   [yyy] Error code range (000-999)
*/

// public: 00xxx
const (
	InternalError         = HivePrefix + "00001"
	BadRequest            = HivePrefix + "00002"
	Forbidden             = HivePrefix + "00003"
	AlreadyExist          = HivePrefix + "00004"
	NotFound              = HivePrefix + "00005"
	RequestEntityTooLarge = HivePrefix + "00006"
	NotImplemented        = HivePrefix + "00007"
	Unauthorized          = HivePrefix + "00008"
)

// auth: 01xxx
const (
	AuthMissing       = HivePrefix + "01001"
	TokenExpired      = HivePrefix + "01002"
	TokenRevoked      = HivePrefix + "01003"
	UserNotRegistered = HivePrefix + "01004"
)

// job: 02xxx
const (
	JobNotFound = HivePrefix + "02001"
	NoWork      = HivePrefix + "02002"
	BadState    = HivePrefix + "02003"
)

// channel: 03xxx
const (
	ChannelNotFound = HivePrefix + "03001"
)

// file transfer: 04xxx
const (
	FileNotFound         = HivePrefix + "04001"
	TransferTokenInvalid = HivePrefix + "04002"
	TokenUserMismatch    = HivePrefix + "04003"
	SessionMismatch      = HivePrefix + "04004"
	ChunkConflict        = HivePrefix + "04005"
)

// returns true if the specified error carries a hive error reason.
func IsHive(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(string(ReasonForError(err)), HivePrefix)
}

func IsAlreadyExist(err error) bool {
	return ReasonForError(err) == AlreadyExist
}

func IsBadRequest(err error) bool {
	reason := ReasonForError(err)
	return reason == BadRequest || reason == BadState || reason == AuthMissing
}

func IsBadState(err error) bool {
	return ReasonForError(err) == BadState
}

func IsInternal(err error) bool {
	return ReasonForError(err) == InternalError
}

func IsNoWork(err error) bool {
	return ReasonForError(err) == NoWork
}

func IsNotFound(err error) bool {
	reason := ReasonForError(err)
	if reason == NotFound || reason == JobNotFound || reason == ChannelNotFound ||
		reason == FileNotFound {
		return true
	}
	return false
}

func IsUnauthorized(err error) bool {
	reason := ReasonForError(err)
	return reason == Unauthorized || reason == TokenExpired || reason == TokenRevoked ||
		reason == UserNotRegistered
}

func IsForbidden(err error) bool {
	return ReasonForError(err) == Forbidden
}

// IsTransferConflict reports token, session or chunk conflicts during file transfer.
func IsTransferConflict(err error) bool {
	reason := ReasonForError(err)
	return reason == TransferTokenInvalid || reason == TokenUserMismatch ||
		reason == SessionMismatch || reason == ChunkConflict
}

func IgnoreFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsHive(err) {
		return ""
	}
	return string(ReasonForError(err))
}

func NewBadRequest(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}}
}

func NewInternalError(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}}
}

func NewAlreadyExist(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}}
}

func NewForbidden(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}}
}

func NotFoundErrorCode(kind string) StatusReason {
	switch kind {
	case JobKind:
		return JobNotFound
	case ChannelKind:
		return ChannelNotFound
	case FileKind:
		return FileNotFound
	default:
		return NotFound
	}
}

func NewNotFound(kind, name string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFoundErrorCode(kind),
		Kind:    kind,
		Name:    name,
		Message: fmt.Sprintf("%s %s not found.", kind, name),
	}}
}

func NewNotFoundWithMessage(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}}
}

func NewRequestEntityTooLargeError(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusRequestEntityTooLarge,
		Reason:  RequestEntityTooLarge,
		Message: fmt.Sprintf("Request entity is too large: %s", message),
	}}
}

func NewNotImplemented(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNotImplemented,
		Reason:  NotImplemented,
		Message: message,
	}}
}

func NewUnauthorized(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  Unauthorized,
		Message: message,
	}}
}

// NewAuthMissing reports a request that carries no credentials at all.
func NewAuthMissing(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  AuthMissing,
		Message: message,
	}}
}

func NewTokenExpired(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  TokenExpired,
		Message: message,
	}}
}

func NewTokenRevoked(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  TokenRevoked,
		Message: message,
	}}
}

func NewUserNotRegistered(user string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  UserNotRegistered,
		Message: fmt.Sprintf("the user(%s) is not registered", user),
	}}
}

// NewNoWork reports an empty dispatch queue. Mapped to 204, not an error body.
func NewNoWork() *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNoContent,
		Reason:  NoWork,
		Message: "no pending job is available",
	}}
}

func NewBadState(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadState,
		Message: message,
	}}
}

func NewTransferTokenInvalid(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  TransferTokenInvalid,
		Message: message,
	}}
}

func NewTokenUserMismatch(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  TokenUserMismatch,
		Message: message,
	}}
}

func NewSessionMismatch(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  SessionMismatch,
		Message: message,
	}}
}

func NewChunkConflict(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  ChunkConflict,
		Message: message,
	}}
}
