package exchange

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("exchange: order not found")
	ErrCircuitOpen   = errors.New("exchange: circuit open")
)

// Error is a venue failure tied to one operation. Retryable marks failures
// where the caller's state was left untouched and the call can be repeated.
// Cancelled marks a failed move whose existing order was already cancelled.
type Error struct {
	Op        string
	Symbol    string
	OrderID   string
	Retryable bool
	Cancelled bool
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("exchange %s %s", e.Op, e.Symbol)
	if e.OrderID != "" {
		msg += " order=" + e.OrderID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err carries a retryable venue failure.
func IsRetryable(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Retryable
	}
	return errors.Is(err, ErrCircuitOpen)
}

// CancelledExisting reports whether err is a failed move that already
// removed the order it was replacing.
func CancelledExisting(err error) bool {
	var ve *Error
	return errors.As(err, &ve) && ve.Cancelled
}
