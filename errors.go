package zbc

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/dswarbrick/go-zbc/internal/transport"
)

// Error represents a structured go-zbc error with context and errno mapping.
type Error struct {
	Op    string                // operation that failed, e.g. "REPORT_ZONES"
	DevID uint32                // device id (0 if not applicable)
	Code  ErrCode               // high-level error category
	Errno syscall.Errno         // kernel errno, 0 if not applicable
	Sense transport.SenseError  // populated for ErrCodeDevice and ErrCodeActivation
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.DevID != 0 {
		parts = append(parts, fmt.Sprintf("dev=%d", e.DevID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}
	if !e.Sense.IsZero() {
		parts = append(parts, fmt.Sprintf("sense=%02x/%04x", e.Sense.SenseKey, e.Sense.ASCASCQ()))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("zbc: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("zbc: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is lets errors.Is compare two *Error by category, or an *Error
// against a bare ErrCode.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if code, ok := target.(ErrCode); ok {
		return e.Code == code
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrCode identifies one of the error kinds from the error handling
// design: invalid argument, not supported, transient transport,
// device error, activation error, and timeout.
type ErrCode string

const (
	ErrCodeInvalidArgument ErrCode = "invalid argument"
	ErrCodeNotSupported    ErrCode = "not supported"
	ErrCodeTransient       ErrCode = "transient transport error"
	ErrCodeDevice          ErrCode = "device error"
	ErrCodeActivation      ErrCode = "activation error"
	ErrCodeTimeout         ErrCode = "timeout"

	ErrCodeDeviceNotFound   ErrCode = "device not found"
	ErrCodePermissionDenied ErrCode = "permission denied"
)

func (c ErrCode) Error() string { return string(c) }

// Sense key values used by the zone-management command set.
const (
	SenseNoSense        uint8 = 0x0
	SenseNotReady       uint8 = 0x2
	SenseMediumError    uint8 = 0x3
	SenseIllegalRequest uint8 = 0x5
	SenseDataProtect    uint8 = 0x7
	SenseAbortedCommand uint8 = 0xB
)

// ASC/ASCQ codes, packed as (asc<<8)|ascq to match SenseError.ASCASCQ.
const (
	ASCInvalidFieldInCDB         uint16 = 0x2400
	ASCLBAOutOfRange             uint16 = 0x2100
	ASCUnalignedWrite            uint16 = 0x2104
	ASCWriteBoundaryViolation    uint16 = 0x2105
	ASCReadInvalidData           uint16 = 0x2106
	ASCReadBoundaryViolation     uint16 = 0x2107
	ASCZoneReadOnly              uint16 = 0x2708
	ASCInsufficientZoneResources uint16 = 0x550E
	ASCZoneResetWPRecommended    uint16 = 0x2A07
	ASCFormatInProgress          uint16 = 0x0404
)

var ascNames = map[uint16]string{
	ASCInvalidFieldInCDB:         "INVALID_FIELD_IN_CDB",
	ASCLBAOutOfRange:             "LBA_OUT_OF_RANGE",
	ASCUnalignedWrite:            "UNALIGNED_WRITE",
	ASCWriteBoundaryViolation:    "WRITE_BOUNDARY_VIOLATION",
	ASCReadInvalidData:           "READ_INVALID_DATA",
	ASCReadBoundaryViolation:     "READ_BOUNDARY_VIOLATION",
	ASCZoneReadOnly:              "ZONE_READ_ONLY",
	ASCInsufficientZoneResources: "INSUFFICIENT_ZONE_RESOURCES",
	ASCZoneResetWPRecommended:    "ZONE_RESET_WP_RECOMMENDED",
	ASCFormatInProgress:          "FORMAT_IN_PROGRESS",
}

// ASCName returns the mnemonic for a packed ASC/ASCQ code, or a hex
// fallback for a code this library does not interpret.
func ASCName(ascAscq uint16) string {
	if name, ok := ascNames[ascAscq]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", ascAscq)
}

var senseKeyNames = map[uint8]string{
	SenseNoSense:        "NO_SENSE",
	SenseNotReady:       "NOT_READY",
	SenseMediumError:    "MEDIUM_ERROR",
	SenseIllegalRequest: "ILLEGAL_REQUEST",
	SenseDataProtect:    "DATA_PROTECT",
	SenseAbortedCommand: "ABORTED_COMMAND",
}

// SenseKeyName returns the mnemonic for a sense key, or a hex fallback.
func SenseKeyName(key uint8) string {
	if name, ok := senseKeyNames[key]; ok {
		return name
	}
	return fmt.Sprintf("0x%x", key)
}

// NewError creates a plain *Error with no device, errno or sense context.
func NewError(op string, code ErrCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno creates an *Error carrying a kernel errno from a
// failed syscall or ioctl.
func NewErrorWithErrno(op string, code ErrCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewDeviceError creates an *Error for a CHECK CONDITION, carrying the
// sense triple the caller should inspect.
func NewDeviceError(op string, devID uint32, sense transport.SenseError) *Error {
	return &Error{
		Op:    op,
		DevID: devID,
		Code:  ErrCodeDevice,
		Sense: sense,
		Msg:   fmt.Sprintf("%s/%s", SenseKeyName(sense.SenseKey), ASCName(sense.ASCASCQ())),
	}
}

// NewActivationError creates an *Error for a refused ZONE ACTIVATE,
// carrying both the sense triple and the activation-specific fields.
func NewActivationError(op string, devID uint32, sense transport.SenseError) *Error {
	e := NewDeviceError(op, devID, sense)
	e.Code = ErrCodeActivation
	return e
}

// WrapError wraps a bare error (commonly a syscall.Errno from an ioctl
// or SG_IO submit with no sense data attached) with operation context.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ze, ok := inner.(*Error); ok {
		return &Error{
			Op: op, DevID: ze.DevID, Code: ze.Code, Errno: ze.Errno,
			Sense: ze.Sense, Msg: ze.Msg, Inner: ze.Inner,
		}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Code: ErrCodeInvalidArgument, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrCode {
	switch errno {
	case syscall.ENOENT, syscall.ENODEV:
		return ErrCodeDeviceNotFound
	case syscall.EACCES, syscall.EPERM:
		return ErrCodePermissionDenied
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidArgument
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return ErrCodeNotSupported
	case syscall.ETIMEDOUT:
		return ErrCodeTimeout
	case syscall.EAGAIN, syscall.EBUSY, syscall.EIO:
		return ErrCodeTransient
	default:
		return ErrCodeDevice
	}
}

// IsCode reports whether err is a *Error with the given code.
func IsCode(err error, code ErrCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error wrapping the given errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Errno == errno
	}
	return false
}

// IsSenseKey reports whether err is a *Error carrying sense data with
// the given sense key.
func IsSenseKey(err error, sk uint8) bool {
	var e *Error
	if errors.As(err, &e) {
		return !e.Sense.IsZero() && e.Sense.SenseKey == sk
	}
	return false
}

// IsASCASCQ reports whether err is a *Error carrying sense data with
// the given additional sense code and qualifier.
func IsASCASCQ(err error, asc, ascq uint8) bool {
	var e *Error
	if errors.As(err, &e) {
		return !e.Sense.IsZero() && e.Sense.ASC == asc && e.Sense.ASCQ == ascq
	}
	return false
}
