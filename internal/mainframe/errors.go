package mainframe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

// TransportError classifies mainframe call failures as transient/permanent.
type TransportError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "mainframe transport error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ProtocolError reports a response the mainframe sent but that could not be understood.
type ProtocolError struct {
	Message string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("mainframe protocol error: %s: %v", e.Message, e.Cause)
	}
	return "mainframe protocol error: " + e.Message
}

func (e *ProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// MissingParamsError lists mandatory protocol parameters that were empty after merging.
type MissingParamsError struct {
	Missing []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("%s: missing mainframe parameters %s", domain.ErrNotConfigured, strings.Join(e.Missing, ","))
}

func (e *MissingParamsError) Unwrap() error { return domain.ErrNotConfigured }

// IsTransient reports whether an error should be retried quickly.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
