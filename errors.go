/* mtphost - MTP/PTP host library
 *
 * Error taxonomy
 */

package mtphost

import (
	"errors"
	"fmt"
)

// Sentinel errors, surfaced to callers as-is or wrapped by fmt.Errorf's
// %w.
var (
	ErrDisconnected      = errors.New("device is no longer reachable")
	ErrPermissionDenied  = errors.New("transport refused to claim the interface")
	ErrNotOpen           = errors.New("session is not open")
	ErrObjectNotFound    = errors.New("object handle is unknown to the device")
	ErrInvalidStorage    = errors.New("storage id is unknown to the device")
	ErrInvalidParent     = errors.New("parent handle is unknown to the device")
	ErrStorageFull       = errors.New("the destination storage is full")
	ErrWriteProtected    = errors.New("the storage is write protected")
	ErrReadOnly          = errors.New("the storage is read-only")
	ErrBusy              = errors.New("device reported transient busy condition")
	ErrStall             = errors.New("endpoint stalled")
	ErrCancelled         = errors.New("operation cancelled by caller")
	ErrSessionAlreadyOpen = errors.New("session already open")
)

// NotSupported reports that an operation isn't in the device's
// supported-operations set, or the device returned OperationNotSupported.
type NotSupported struct {
	Op string
}

func (e *NotSupported) Error() string {
	return fmt.Sprintf("operation not supported: %s", e.Op)
}

// Hint implements the remediationHinter interface.
func (e *NotSupported) Hint() string {
	return "This device doesn't support " + e.Op + "."
}

// Timeout reports that a per-phase or overall deadline was exceeded.
type Timeout struct {
	Phase string // "bulk-out", "bulk-in", "response-wait", "interrupt-in", "overall", or ""
}

func (e *Timeout) Error() string {
	if e.Phase == "" {
		return "operation timed out"
	}
	return fmt.Sprintf("timed out during the %s phase", e.Phase)
}

func (e *Timeout) Hint() string {
	return "The USB transfer timed out" +
		func() string {
			if e.Phase != "" {
				return " during the " + e.Phase + " phase"
			}
			return ""
		}() + ". Reconnect the device and try again."
}

// Protocol reports any PTP response code not otherwise classified.
type Protocol struct {
	Code    uint16
	Message string
}

func (e *Protocol) Error() string {
	name := ResponseCodeName(e.Code)
	if e.Message != "" {
		return fmt.Sprintf("%s (0x%04x): %s", name, e.Code, e.Message)
	}
	return fmt.Sprintf("%s (0x%04x)", name, e.Code)
}

func (e *Protocol) Hint() string {
	return "The device returned an unexpected protocol response (" + e.Error() + ")."
}

// VerificationFailed reports a post-write size mismatch.
type VerificationFailed struct {
	Expected, Actual int64
}

func (e *VerificationFailed) Error() string {
	return fmt.Sprintf("verification failed: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *VerificationFailed) Hint() string {
	return "The transferred object's size doesn't match what was sent; the transfer may have been interrupted."
}

// PreconditionFailed reports a caller contract violation.
type PreconditionFailed struct {
	Reason string
}

func (e *PreconditionFailed) Error() string {
	return "precondition failed: " + e.Reason
}

func (e *PreconditionFailed) Hint() string {
	return e.Reason
}

// remediationHinter is implemented by every typed error above; Hint
// returns a short, user-facing remediation suggestion.
type remediationHinter interface {
	Hint() string
}

// Hint returns the remediation hint for any error surfaced by this
// package, or "" if none applies.
func Hint(err error) string {
	var h remediationHinter
	if errors.As(err, &h) {
		return h.Hint()
	}
	switch {
	case errors.Is(err, ErrDisconnected):
		return "Reconnect the device and unlock the screen."
	case errors.Is(err, ErrStorageFull):
		return "The destination storage is full."
	case errors.Is(err, ErrBusy):
		return "The device is busy; the operation will be retried automatically."
	}
	return ""
}

// classifyResponse converts a PTP response code into the taxonomy
// above. Codes 0x2003 and 0x2019 are treated as transient/retryable by
// the session actor before classifyResponse is ever consulted for a
// final verdict (see session.go's busy-backoff loop); classifyResponse
// itself always reports the final, non-retried outcome.
//
// 0x2003 is SessionNotOpen per the PTP standard, but several observed
// devices also return it transiently while still warming up. This code
// accepts both readings: the busy backoff loop retries it, and if
// retries are exhausted it is reported as ErrBusy here, like 0x2019,
// rather than a specific NotOpen, since by then we can't tell which
// meaning applies.
func classifyResponse(code uint16, op string) error {
	switch code {
	case RespOK:
		return nil
	case RespNotSupported:
		return &NotSupported{Op: op}
	case RespInvalidStorageID:
		return ErrInvalidStorage
	case RespInvalidObjectHandle:
		return ErrObjectNotFound
	case RespStoreFull:
		return ErrStorageFull
	case RespWriteProtected:
		return ErrWriteProtected
	case RespReadOnly:
		return ErrReadOnly
	case RespAccessDenied:
		return ErrPermissionDenied
	case RespDeviceBusy, RespSessionNotOpen:
		return ErrBusy
	case RespInvalidParameter:
		return &Protocol{Code: code, Message: "invalid parameter"}
	case RespSessionAlreadyOpen:
		return ErrSessionAlreadyOpen
	default:
		return &Protocol{Code: code}
	}
}

// isRetryableBusy reports whether a response code should trigger the
// busy-backoff loop.
func isRetryableBusy(code uint16) bool {
	return code == RespSessionNotOpen || code == RespDeviceBusy
}
