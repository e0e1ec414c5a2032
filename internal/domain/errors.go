package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// DuplicateSymbolError is returned when an add targets a symbol already in the registry.
type DuplicateSymbolError struct {
	Symbol string
}

func (e *DuplicateSymbolError) Error() string {
	return "duplicate symbol: " + e.Symbol
}

// NotFoundError is returned when a symbol is unknown to the registry or to a resolver.
type NotFoundError struct {
	Symbol string
}

func (e *NotFoundError) Error() string {
	return "symbol not found: " + e.Symbol
}

// ValidationError rejects malformed user input. Nothing is changed when it is returned.
type ValidationError struct {
	Field  string // "amount", "cash", "symbol", ...
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + " " + quote(e.Input) + ": " + e.Reason
}

// TransientFeedError represents a network or parse failure in a quote feed. Always retriable.
type TransientFeedError struct {
	Op  string // Operation that failed (e.g., "poll", "resolve", "dial")
	Err error  // Underlying error
}

func (e *TransientFeedError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransientFeedError) IsRetriable() bool {
	return true
}

func (e *TransientFeedError) Unwrap() error {
	return e.Err
}

// NewTransientFeedError wraps err as a retriable feed failure.
func NewTransientFeedError(op string, err error) *TransientFeedError {
	return &TransientFeedError{Op: op, Err: err}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrEmptyResponse is returned when a quote service answers without any quote.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse is returned when a quote service answer cannot be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrEngineStopped is returned when a command is submitted after the engine exited.
	ErrEngineStopped = errors.New("engine stopped")
)

// User-visible messages. Every failure is shown the same way: one of these plus a failure flag.
const (
	MsgSymbolAdded     = "SYMBOL ADDED"
	MsgCashUpdated     = "CASH UPDATED"
	MsgDuplicateSymbol = "DUPLICATE SYMBOL ENTERED"
	MsgSymbolNotFound  = "SYMBOL NOT FOUND"
	MsgInvalidAmount   = "INVALID AMOUNT"
	MsgInvalidInput    = "INVALID INPUT"
	MsgNoConnection    = "NO CONNECTION"
)

// UserMessage maps an error to the notification text shown to the user.
func UserMessage(err error) string {
	var dup *DuplicateSymbolError
	var nf *NotFoundError
	var ve *ValidationError
	switch {
	case errors.As(err, &dup):
		return MsgDuplicateSymbol
	case errors.As(err, &nf):
		return MsgSymbolNotFound
	case errors.As(err, &ve):
		if ve.Field == "amount" || ve.Field == "cash" {
			return MsgInvalidAmount
		}
		return MsgInvalidInput
	default:
		return MsgNoConnection
	}
}

func quote(s string) string {
	return "\"" + s + "\""
}
