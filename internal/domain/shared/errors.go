// Package shared holds the identity, value objects, events and error kinds
// every domain package depends on. It imports nothing outside the standard
// library.
package shared

import (
	"errors"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR KINDS
// ══════════════════════════════════════════════════════════════════════════════

// Kinds classify failures for errors.Is. Transport layers map them to status
// codes and toasts; callers never compare messages.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("negative value")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrForbidden        = errors.New("forbidden")

	// ErrConcurrentModification is returned by compare-and-set writes when
	// another writer got there first.
	ErrConcurrentModification = errors.New("concurrent modification")

	ErrExternalService    = errors.New("external service failure")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("timeout")
)

var (
	validationKinds = []error{ErrInvalidID, ErrInvalidInput, ErrNegativeValue, ErrValueOutOfRange}
	transientKinds  = []error{ErrServiceUnavailable, ErrTimeout, ErrConcurrentModification}
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError names where a failure happened and which kind it is.
// errors.Is matches both the kind and the wrapped cause.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause and the kind.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Err != nil {
		out = append(out, e.Err)
	}
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	return out
}

// NewDomainError creates an error without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError attaches domain context to err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrLessonNotFound       = NewDomainError("lesson", "GetLesson", ErrNotFound, "lesson not found")
	ErrContentUnavailable   = NewDomainError("lesson", "Load", ErrServiceUnavailable, "lesson content unavailable")
	ErrInvalidSessionState  = NewDomainError("lesson", "Transition", ErrStateTransition, "transition not allowed from current phase")
	ErrSessionAlreadyClosed = NewDomainError("lesson", "Complete", ErrAlreadyProcessed, "session already completed")
	ErrInputDisabled        = NewDomainError("lesson", "Submit", ErrInvalidState, "input is disabled")

	ErrNoHearts = NewDomainError("hearts", "Lose", ErrInvalidState, "no hearts left")

	ErrStreakNotFound    = NewDomainError("streak", "Get", ErrNotFound, "streak not found")
	ErrDailyGoalNotFound = NewDomainError("streak", "GetDailyGoal", ErrNotFound, "no daily goal for date")
	ErrInvalidXP         = NewDomainError("streak", "AddXP", ErrNegativeValue, "xp cannot be negative")

	ErrAchievementUnlocked = NewDomainError("achievement", "Unlock", ErrAlreadyExists, "achievement already unlocked")

	ErrLeagueNotFound     = NewDomainError("league", "GetLeague", ErrNotFound, "league not found")
	ErrMembershipNotFound = NewDomainError("league", "GetMembership", ErrNotFound, "no membership for week")
	ErrMembershipExists   = NewDomainError("league", "Join", ErrAlreadyExists, "membership already exists for week")

	ErrHardGateActive = NewDomainError("anonymous", "Dismiss", ErrForbidden, "signup required to continue")
	ErrLocalStore     = NewDomainError("anonymous", "Store", ErrExternalService, "local store failure")
)

// ══════════════════════════════════════════════════════════════════════════════
// CLASSIFIERS
// ══════════════════════════════════════════════════════════════════════════════

func isAny(err error, kinds []error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsValidation(err error) bool    { return isAny(err, validationKinds) }

// IsRetryable reports failures worth another attempt with the same input.
func IsRetryable(err error) bool { return isAny(err, transientKinds) }
