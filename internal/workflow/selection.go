package workflow

import "maps"

// Snapshot is an immutable copy of a Selection
type Snapshot struct {
	Scope      *Option           `json:"scope,omitempty"`
	Target     *Option           `json:"target,omitempty"`
	SearchText string            `json:"search_text"`
	Reason     string            `json:"reason,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
}

// ScopeID returns the selected scope ID or ""
func (s Snapshot) ScopeID() string {
	if s.Scope == nil {
		return ""
	}
	return s.Scope.ID
}

// TargetID returns the selected target ID or ""
func (s Snapshot) TargetID() string {
	if s.Target == nil {
		return ""
	}
	return s.Target.ID
}

// Selection holds a dialog's in-progress choices. Every setter that
// invalidates a dependent field resets it. Not safe for concurrent use.
type Selection struct {
	requiresScope bool
	scope         *Option
	target        *Option
	searchText    string
	reason        string
	payload       map[string]string
}

// NewSelection creates an empty selection
func NewSelection(requiresScope bool) *Selection {
	return &Selection{requiresScope: requiresScope}
}

// SetScope replaces the scope and clears everything chosen under the old one.
// A nil scope clears it.
func (s *Selection) SetScope(scope *Option) {
	s.scope = cloneOption(scope)
	s.target = nil
	s.searchText = ""
	s.reason = ""
	s.payload = nil
}

// SetTarget replaces the target and clears the search text. A target that
// differs from the current one also drops the edit payload. Setting a target
// while a required scope is unset fails with ErrScopeRequired.
func (s *Selection) SetTarget(target *Option) error {
	if target != nil && s.requiresScope && s.scope == nil {
		return ErrScopeRequired
	}
	if target == nil || s.target == nil || s.target.ID != target.ID {
		s.payload = nil
	}
	s.target = cloneOption(target)
	s.searchText = ""
	return nil
}

// RefreshTarget merges a detail snapshot into the current target when the IDs
// match and reports whether it did
func (s *Selection) RefreshTarget(details Option) bool {
	if s.target == nil || s.target.ID != details.ID {
		return false
	}
	if details.Label != "" {
		s.target.Label = details.Label
	}
	s.target.Quantity = cloneInt(details.Quantity)
	s.target.Price = cloneInt(details.Price)
	return true
}

// SetSearchText stores the child search text. The target is untouched.
func (s *Selection) SetSearchText(text string) {
	s.searchText = text
}

// SetReason stores the reason verbatim
func (s *Selection) SetReason(reason string) {
	s.reason = reason
}

// SetPayload replaces the edit payload
func (s *Selection) SetPayload(payload map[string]string) {
	s.payload = maps.Clone(payload)
}

// Reset returns every field to empty
func (s *Selection) Reset() {
	s.scope = nil
	s.target = nil
	s.searchText = ""
	s.reason = ""
	s.payload = nil
}

// Snapshot copies the current selection
func (s *Selection) Snapshot() Snapshot {
	return Snapshot{
		Scope:      cloneOption(s.scope),
		Target:     cloneOption(s.target),
		SearchText: s.searchText,
		Reason:     s.reason,
		Payload:    maps.Clone(s.payload),
	}
}

// Empty reports whether nothing is selected
func (s *Selection) Empty() bool {
	return s.scope == nil && s.target == nil && s.searchText == "" && s.reason == "" && len(s.payload) == 0
}

func cloneOption(o *Option) *Option {
	if o == nil {
		return nil
	}
	c := *o
	c.Quantity = cloneInt(o.Quantity)
	c.Price = cloneInt(o.Price)
	return &c
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
