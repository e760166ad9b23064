package workflow

import (
	"fmt"
	"slices"
	"strings"
)

// Category is the user-facing class of a failed commit
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryBusinessRule  Category = "business_rule"
	CategoryAuthorization Category = "authorization"
	CategoryNotFound      Category = "not_found"
	CategoryConflict      Category = "conflict"
	CategoryGeneric       Category = "generic"
)

// MessageKey is a stable identifier for a user-facing message
type MessageKey string

const (
	KeyStockRemaining   MessageKey = "stock_remaining"
	KeyAdminRequired    MessageKey = "admin_required"
	KeyNotFound         MessageKey = "not_found"
	KeyDependentRecords MessageKey = "dependent_records"
	KeyGeneric          MessageKey = "generic"

	KeyNoTarget        MessageKey = "no_target"
	KeyScopeRequired   MessageKey = "scope_required"
	KeyReasonRequired  MessageKey = "reason_required"
	KeyPayloadRequired MessageKey = "payload_required"
	KeyPayloadInvalid  MessageKey = "payload_invalid"
	KeyDemoMode        MessageKey = "demo_mode"
	KeyCancelled       MessageKey = "cancelled"
)

var messages = map[MessageKey]string{
	KeyStockRemaining:   "must reduce quantity to zero before deletion.",
	KeyAdminRequired:    "administrator privilege required.",
	KeyNotFound:         "item no longer exists.",
	KeyDependentRecords: "cannot delete: dependent records exist.",
	KeyGeneric:          "operation failed, please try again.",
	KeyNoTarget:         "no target selected",
	KeyScopeRequired:    "select a supplier first",
	KeyReasonRequired:   "a reason is required",
	KeyPayloadRequired:  "enter the changes to save",
	KeyPayloadInvalid:   "the changes are not valid",
	KeyDemoMode:         "demo mode: action blocked",
	KeyCancelled:        "operation cancelled",
}

// Message returns the display text for key
func Message(key MessageKey) string {
	return messages[key]
}

// ClassifiedError is a failed commit mapped onto the fixed taxonomy
type ClassifiedError struct {
	Category Category   `json:"category"`
	Key      MessageKey `json:"message_key"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
}

// Failure is the raw rejection signal a committer returns. Any of the three
// fields may be empty.
type Failure struct {
	Code    string
	Status  int
	Message string
}

func (f *Failure) Error() string {
	switch {
	case f.Code != "" && f.Message != "":
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	case f.Message != "":
		return f.Message
	case f.Code != "":
		return f.Code
	case f.Status != 0:
		return fmt.Sprintf("status %d", f.Status)
	default:
		return "unknown failure"
	}
}

// Rule matches a failure to a category. A rule matches when the failure's
// code is in Codes, its status is in Statuses, or its message contains one of
// Keywords (case-insensitive).
type Rule struct {
	Category Category
	Key      MessageKey
	Severity Severity
	Codes    []string
	Statuses []int
	Keywords []string
}

// DefaultRules in priority order. The first matching rule wins.
var DefaultRules = []Rule{
	{
		Category: CategoryBusinessRule,
		Key:      KeyStockRemaining,
		Severity: SeverityError,
		Codes:    []string{"STOCK_REMAINING"},
		Keywords: []string{
			"still have stock",
			"stock allocated",
			"stock remaining",
			"quantity must be zero",
			"non-zero quantity",
			"nonzero quantity",
			// legacy backend wording
			"masih ada stok",
		},
	},
	{
		Category: CategoryAuthorization,
		Key:      KeyAdminRequired,
		Severity: SeverityWarning,
		Codes:    []string{"FORBIDDEN", "UNAUTHORIZED"},
		Statuses: []int{401, 403},
		Keywords: []string{"admin", "forbidden", "unauthorized", "not authorized", "permission", "privilege"},
	},
	{
		Category: CategoryNotFound,
		Key:      KeyNotFound,
		Severity: SeverityWarning,
		Codes:    []string{"NOT_FOUND"},
		Statuses: []int{404, 410},
		Keywords: []string{"not found", "no longer exists", "does not exist", "already deleted"},
	},
	{
		Category: CategoryConflict,
		Key:      KeyDependentRecords,
		Severity: SeverityError,
		Codes:    []string{"CONFLICT"},
		Statuses: []int{409},
		Keywords: []string{"foreign key", "violates", "constraint", "linked", "dependent", "still reference", "in use"},
	},
}

// Generic is the fallback outcome for anything no rule recognises
func Generic() ClassifiedError {
	return ClassifiedError{
		Category: CategoryGeneric,
		Key:      KeyGeneric,
		Severity: SeverityError,
		Message:  messages[KeyGeneric],
	}
}

// Classify maps f onto the first matching rule. A structured code is
// authoritative: when any rule lists it, text and status are not consulted.
// Otherwise rules are tried in order against status and message text.
func Classify(rules []Rule, f *Failure) ClassifiedError {
	if f == nil {
		return Generic()
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}

	if code := strings.ToUpper(strings.TrimSpace(f.Code)); code != "" {
		for _, r := range rules {
			if slices.Contains(r.Codes, code) {
				return r.classified()
			}
		}
	}

	text := strings.ToLower(f.Message)
	for _, r := range rules {
		if f.Status != 0 && slices.Contains(r.Statuses, f.Status) {
			return r.classified()
		}
		if text == "" {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return r.classified()
			}
		}
	}

	return Generic()
}

// ClassifyText classifies a bare free-text signal
func ClassifyText(signal string) ClassifiedError {
	if strings.TrimSpace(signal) == "" {
		return Generic()
	}
	return Classify(DefaultRules, &Failure{Message: signal})
}

func (r Rule) classified() ClassifiedError {
	msg, ok := messages[r.Key]
	if !ok {
		msg = string(r.Key)
	}
	return ClassifiedError{
		Category: r.Category,
		Key:      r.Key,
		Severity: r.Severity,
		Message:  msg,
	}
}
