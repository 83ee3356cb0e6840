package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	// Validation: the run never starts.
	ErrNoContacts            = errors.New("no contacts to send to")
	ErrBlankSender           = errors.New("sender name must not be blank")
	ErrMissingColumns        = errors.New("spreadsheet is missing required columns")
	ErrUnreadableSpreadsheet = errors.New("spreadsheet could not be read")
	ErrUnsupportedFormat     = errors.New("unsupported spreadsheet format: must be .xlsx or .csv")

	// Session: aborts the run before any send.
	ErrAuthenticationTimeout = errors.New("timed out waiting for WhatsApp Web authentication")

	// Per-contact: counted as one failure, the loop continues.
	ErrInvalidPhone   = errors.New("phone number contains no digits")
	ErrDeliveryFailed = errors.New("message delivery failed")

	// Run management.
	ErrNotFound       = errors.New("not found")
	ErrRunInProgress  = errors.New("another run is already in progress")
	ErrNotCancellable = errors.New("run cannot be cancelled in its current status")
	ErrPipelineUsed   = errors.New("pipeline has already been started")
	ErrShuttingDown   = errors.New("dispatcher is shutting down")
)

// MissingColumnsError lists the required headers a spreadsheet lacks.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumns.Error(), strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error { return ErrMissingColumns }

// IsValidation reports whether err should be shown to the user as an input
// problem rather than a runtime failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoContacts) ||
		errors.Is(err, ErrBlankSender) ||
		errors.Is(err, ErrMissingColumns) ||
		errors.Is(err, ErrUnreadableSpreadsheet) ||
		errors.Is(err, ErrUnsupportedFormat)
}
