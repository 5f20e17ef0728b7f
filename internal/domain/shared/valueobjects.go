package shared

import (
	"context"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// UserID is the opaque identifier of an authenticated learner.
type UserID string

// IsEmpty returns true if the ID is empty.
func (u UserID) IsEmpty() bool {
	return strings.TrimSpace(string(u)) == ""
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID validates and creates a UserID.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if u.IsEmpty() {
		return "", NewDomainError("shared", "NewUserID", ErrInvalidID, "user id cannot be empty")
	}
	return u, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IDENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Identity is the "current user id, or none" signal. The engine picks its whole
// persistence strategy from it.
type Identity struct {
	userID UserID
}

// Anonymous returns an identity without a user.
func Anonymous() Identity {
	return Identity{}
}

// Authenticated returns an identity for the given user.
func Authenticated(id UserID) Identity {
	return Identity{userID: id}
}

// UserID returns the user id and whether the identity is authenticated.
func (i Identity) UserID() (UserID, bool) {
	return i.userID, !i.userID.IsEmpty()
}

// IsAuthenticated returns true if a user is signed in.
func (i Identity) IsAuthenticated() bool {
	return !i.userID.IsEmpty()
}

// ══════════════════════════════════════════════════════════════════════════════
// RANK
// ══════════════════════════════════════════════════════════════════════════════

// Rank is a 1-based position in an ordered cohort. Zero means unranked.
type Rank int

// IsUnranked returns true if the rank is not set.
func (r Rank) IsUnranked() bool {
	return r <= 0
}

// IsTop returns true if the rank is within the top n.
func (r Rank) IsTop(n int) bool {
	return r > 0 && int(r) <= n
}

// Int returns the rank as int.
func (r Rank) Int() int {
	return int(r)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// ToastLevel is the severity of a user-visible toast.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toast is a short user-visible message.
type Toast struct {
	UserID  string
	Level   ToastLevel
	Message string
}

// Notifier is a fire-and-forget channel for user-visible toasts.
// Callers never depend on delivery.
type Notifier interface {
	Notify(ctx context.Context, toast Toast)
}

// NopNotifier drops every toast.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Toast) {}
