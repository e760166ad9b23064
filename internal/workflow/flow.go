// Package workflow implements the guided multi-step mutation dialog shared by
// every destructive or rule-constrained inventory operation.
//
// A dialog moves a user from target selection through an optional reason or
// edit step and a mandatory confirmation to a single commit. Selection holds
// the user's choices, Coordinator keeps lookups consistent with them, Machine
// gates every step through a guarded transition table, Orchestrator performs
// the commit, and Classify maps backend failures onto a fixed taxonomy.
// Session ties the pieces together behind one mutex.
package workflow

import (
	"context"
	"errors"
	"slices"
	"time"
)

const (
	DefaultDebounce        = 300 * time.Millisecond
	DefaultMinSearchLength = 2
	DefaultSearchLimit     = 20
)

// Severity grades a notification or classified error
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
)

// Option is one selectable entity returned by a lookup. Quantity and Price
// form the review snapshot and are only filled by detail lookups.
type Option struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Quantity *int64 `json:"quantity,omitempty"`
	Price    *int64 `json:"price,omitempty"`
}

// LookupProvider reads the entities a dialog selects from
type LookupProvider interface {
	// Scopes lists the parent entities. Only called for flows that require a scope.
	Scopes(ctx context.Context) ([]Option, error)
	// Search finds targets. scopeID is empty for flows without a scope.
	Search(ctx context.Context, scopeID, query string, limit int) ([]Option, error)
	// Details returns the current snapshot of one target.
	Details(ctx context.Context, id string) (*Option, error)
}

// Command is the single mutation a confirmed dialog submits
type Command struct {
	Flow     string            `json:"flow"`
	ScopeID  string            `json:"scope_id,omitempty"`
	TargetID string            `json:"target_id"`
	Reason   string            `json:"reason,omitempty"`
	Payload  map[string]string `json:"payload,omitempty"`
	Actor    string            `json:"actor,omitempty"`
	IsAdmin  bool              `json:"-"`
}

// Committer performs a mutation. Application rejections are returned as
// *Failure; any other error is treated as a transport failure.
type Committer interface {
	Commit(ctx context.Context, cmd Command) error
}

// CommitFunc adapts a function to Committer
type CommitFunc func(ctx context.Context, cmd Command) error

// Commit calls f
func (f CommitFunc) Commit(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// Notification is a transient message for the user
type Notification struct {
	Flow     string   `json:"flow"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	TargetID string   `json:"target_id,omitempty"`
}

// Notifier displays notifications. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Refresher is told once per successful commit so list views can refetch
type Refresher interface {
	OnCommitted(ctx context.Context, flow, targetID string)
}

// Capabilities are the caller's flags, supplied by the hosting context
type Capabilities struct {
	Actor    string `json:"actor,omitempty"`
	ReadOnly bool   `json:"read_only"`
	IsAdmin  bool   `json:"is_admin"`
}

// PayloadValidator checks an edit payload and returns a user-facing problem,
// or "" when the payload is acceptable
type PayloadValidator func(payload map[string]string) string

// Flow parameterises the generic dialog for one entity operation
type Flow struct {
	Name            string
	Title           string
	RequiresScope   bool
	RequiresReason  bool
	RequiresPayload bool
	RequiresAdmin   bool
	// Reasons restricts SetReason to a catalog. Empty accepts any text.
	Reasons         []string
	ValidatePayload PayloadValidator
	Lookup          LookupProvider
	Committer       Committer
	// Rules overrides DefaultRules for this flow
	Rules           []Rule
	SuccessMessage  string
	SearchLimit     int
	MinSearchLength int
	Debounce        time.Duration
}

// Validate reports a flow that cannot run
func (f *Flow) Validate() error {
	var errs []error
	if f.Name == "" {
		errs = append(errs, errors.New("flow name is required"))
	}
	if f.Lookup == nil {
		errs = append(errs, errors.New("flow lookup provider is required"))
	}
	if f.Committer == nil {
		errs = append(errs, errors.New("flow committer is required"))
	}
	if f.RequiresPayload && f.ValidatePayload == nil {
		errs = append(errs, errors.New("flow requiring a payload needs a payload validator"))
	}
	return errors.Join(errs...)
}

// withDefaults returns a copy of f with zero tunables replaced
func (f Flow) withDefaults() Flow {
	if f.SearchLimit <= 0 {
		f.SearchLimit = DefaultSearchLimit
	}
	if f.MinSearchLength <= 0 {
		f.MinSearchLength = DefaultMinSearchLength
	}
	if f.Debounce <= 0 {
		f.Debounce = DefaultDebounce
	}
	if f.SuccessMessage == "" {
		f.SuccessMessage = "success"
	}
	if len(f.Rules) == 0 {
		f.Rules = DefaultRules
	}
	return f
}

// requiresInput reports whether the dialog has a step between target and confirmation
func (f *Flow) requiresInput() bool {
	return f.RequiresReason || f.RequiresPayload
}

func (f *Flow) allowsReason(reason string) bool {
	if len(f.Reasons) == 0 {
		return true
	}
	return slices.Contains(f.Reasons, reason)
}

func (f *Flow) payloadProblem(payload map[string]string) string {
	if !f.RequiresPayload || f.ValidatePayload == nil {
		return ""
	}
	if len(payload) == 0 {
		return messages[KeyPayloadRequired]
	}
	return f.ValidatePayload(payload)
}
