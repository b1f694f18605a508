package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on failure mode
// rather than on a specific code.
type Kind int

const (
	// KindInternal is an unexpected failure inside the client itself.
	KindInternal Kind = iota
	// KindValidation is malformed local input. Never reaches the network.
	KindValidation
	// KindAuthorization is a non-2xx response on an authenticated call.
	KindAuthorization
	// KindTransport is a network or timeout failure. Fail-open for session state.
	KindTransport
	// KindNotFound is a missing entity (card, profile) reported by the authority.
	KindNotFound
	// KindRejected is any other authoritative refusal (e.g. insufficient funds
	// decided server-side under concurrent spends).
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindTransport:
		return "transport"
	case KindNotFound:
		return "not_found"
	case KindRejected:
		return "rejected"
	default:
		return "internal"
	}
}

// AppError is a structured error with a stable code and a classification Kind.
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // Wrapped cause (not shown to the user)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, code string, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// Wrap wraps a cause with an AppError.
func Wrap(kind Kind, code string, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

// KindOf extracts the Kind from any error. Non-AppError values are KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ---- Local validation (VAL) ----

func ErrEmptyFields() *AppError {
	return New(KindValidation, "VAL_001", "Please fill in all fields")
}

func ErrInvalidAmount() *AppError {
	return New(KindValidation, "VAL_002", "Please enter a positive amount")
}

func ErrInsufficientBalance() *AppError {
	return New(KindValidation, "VAL_003", "You cannot spend more than you have")
}

func ErrPasswordMismatch() *AppError {
	return New(KindValidation, "VAL_004", "Passwords do not match")
}

func ErrInvalidCardName() *AppError {
	return New(KindValidation, "VAL_005", "Please enter a card name")
}

func ErrInvalidInitialBalance() *AppError {
	return New(KindValidation, "VAL_006", "Please enter a valid balance (0 or greater)")
}

// Validation returns a VAL_000 error with a custom reason.
func Validation(message string) *AppError {
	return New(KindValidation, "VAL_000", message)
}

// ---- Session & authorization (AUTH) ----

func ErrUnauthorized() *AppError {
	return New(KindAuthorization, "AUTH_001", "Session is no longer valid")
}

func ErrNoSession() *AppError {
	return New(KindAuthorization, "AUTH_002", "Not signed in")
}

func ErrLoginFailed(message string) *AppError {
	if message == "" {
		message = "Login failed"
	}
	return New(KindAuthorization, "AUTH_003", message)
}

// ---- Ledger operations (LED) ----

func ErrNoCardSelected() *AppError {
	return New(KindValidation, "LED_001", "No card selected")
}

func ErrCardNotFound() *AppError {
	return New(KindNotFound, "LED_002", "Card not found")
}

// Rejected wraps an authoritative refusal, keeping the server's message.
func Rejected(message string) *AppError {
	if message == "" {
		message = "The request was rejected"
	}
	return New(KindRejected, "LED_003", message)
}

// ---- Transport (NET) ----

// Transport wraps a network or timeout failure.
func Transport(err error) *AppError {
	return Wrap(KindTransport, "NET_001", "Cannot connect to the server", err)
}

// ---- Internal (SYS) ----

// Internal wraps an unexpected client-side failure.
func Internal(err error) *AppError {
	return Wrap(KindInternal, "SYS_001", "Internal error", err)
}
