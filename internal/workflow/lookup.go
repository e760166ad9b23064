package workflow

import "unicode/utf8"

// LookupKind names one of the three dialog lookups
type LookupKind string

const (
	LookupScopes  LookupKind = "scopes"
	LookupSearch  LookupKind = "search"
	LookupDetails LookupKind = "details"
)

// LookupRequest is one issued lookup. Generation identifies it against later
// requests of the same kind.
type LookupRequest struct {
	Kind       LookupKind
	Generation uint64
	ScopeID    string
	Query      string
	TargetID   string
	Limit      int
}

// Coordinator decides which lookups are enabled for a selection and applies
// their results only while they still match it. Not safe for concurrent use.
type Coordinator struct {
	requiresScope   bool
	minSearchLength int
	searchLimit     int

	generations map[LookupKind]uint64
	scopes      []Option
	results     []Option
	noMatches   bool
}

// NewCoordinator creates a coordinator for flow
func NewCoordinator(flow *Flow) *Coordinator {
	f := flow.withDefaults()
	return &Coordinator{
		requiresScope:   f.RequiresScope,
		minSearchLength: f.MinSearchLength,
		searchLimit:     f.SearchLimit,
		generations:     make(map[LookupKind]uint64, 3),
	}
}

// SearchEnabled reports whether snap permits a child search
func (c *Coordinator) SearchEnabled(snap Snapshot) bool {
	if c.requiresScope && snap.Scope == nil {
		return false
	}
	return utf8.RuneCountInString(snap.SearchText) >= c.minSearchLength
}

// PlanScopes issues the parent list lookup. It is disabled for flows without a scope.
func (c *Coordinator) PlanScopes() (LookupRequest, bool) {
	if !c.requiresScope {
		return LookupRequest{}, false
	}
	return LookupRequest{Kind: LookupScopes, Generation: c.next(LookupScopes)}, true
}

// PlanSearch issues a child search for snap. When search is disabled it
// clears the results instead and returns false.
func (c *Coordinator) PlanSearch(snap Snapshot) (LookupRequest, bool) {
	gen := c.next(LookupSearch)
	if !c.SearchEnabled(snap) {
		c.results = nil
		c.noMatches = false
		return LookupRequest{}, false
	}
	return LookupRequest{
		Kind:       LookupSearch,
		Generation: gen,
		ScopeID:    snap.ScopeID(),
		Query:      snap.SearchText,
		Limit:      c.searchLimit,
	}, true
}

// PlanDetails issues a detail lookup for the selected target
func (c *Coordinator) PlanDetails(snap Snapshot) (LookupRequest, bool) {
	gen := c.next(LookupDetails)
	if snap.Target == nil {
		return LookupRequest{}, false
	}
	return LookupRequest{
		Kind:       LookupDetails,
		Generation: gen,
		ScopeID:    snap.ScopeID(),
		TargetID:   snap.Target.ID,
	}, true
}

// AcceptScopes applies a parent list result. A failure leaves an empty list.
func (c *Coordinator) AcceptScopes(req LookupRequest, opts []Option, err error) bool {
	if !c.current(req) {
		return false
	}
	if err != nil {
		opts = nil
	}
	c.scopes = opts
	return true
}

// AcceptSearch applies a child search result if it is the latest search and
// was issued for the current scope and text. A failure degrades to no matches.
func (c *Coordinator) AcceptSearch(req LookupRequest, opts []Option, err error, snap Snapshot) bool {
	if !c.current(req) || req.ScopeID != snap.ScopeID() || req.Query != snap.SearchText {
		return false
	}
	if err != nil {
		opts = nil
	}
	c.results = opts
	c.noMatches = len(opts) == 0
	return true
}

// AcceptDetails returns the detail snapshot to merge if it belongs to the
// latest detail request and the target is still selected
func (c *Coordinator) AcceptDetails(req LookupRequest, opt *Option, err error, snap Snapshot) (*Option, bool) {
	if !c.current(req) || snap.TargetID() != req.TargetID {
		return nil, false
	}
	if err != nil || opt == nil || opt.ID != req.TargetID {
		return nil, false
	}
	return opt, true
}

// Scopes returns the loaded parent list
func (c *Coordinator) Scopes() []Option {
	return append([]Option(nil), c.scopes...)
}

// Options returns the latest search results. A selected target missing from
// them is appended once so it never disappears from view.
func (c *Coordinator) Options(target *Option) []Option {
	out := make([]Option, 0, len(c.results)+1)
	out = append(out, c.results...)
	if target == nil {
		return out
	}
	for _, o := range c.results {
		if o.ID == target.ID {
			return out
		}
	}
	return append(out, *cloneOption(target))
}

// FindScope looks up a loaded scope by ID
func (c *Coordinator) FindScope(id string) (*Option, bool) {
	for i := range c.scopes {
		if c.scopes[i].ID == id {
			return cloneOption(&c.scopes[i]), true
		}
	}
	return nil, false
}

// FindOption looks up a visible option, including a retained target
func (c *Coordinator) FindOption(id string, target *Option) (*Option, bool) {
	for _, o := range c.Options(target) {
		if o.ID == id {
			return cloneOption(&o), true
		}
	}
	return nil, false
}

// NoMatches reports whether the latest accepted search found nothing
func (c *Coordinator) NoMatches() bool {
	return c.noMatches
}

// ClearSearch drops results and invalidates any in-flight search
func (c *Coordinator) ClearSearch() {
	c.next(LookupSearch)
	c.results = nil
	c.noMatches = false
}

// Reset drops every result and invalidates all in-flight lookups
func (c *Coordinator) Reset() {
	for _, kind := range []LookupKind{LookupScopes, LookupSearch, LookupDetails} {
		c.next(kind)
	}
	c.scopes = nil
	c.results = nil
	c.noMatches = false
}

func (c *Coordinator) next(kind LookupKind) uint64 {
	c.generations[kind]++
	return c.generations[kind]
}

func (c *Coordinator) current(req LookupRequest) bool {
	return c.generations[req.Kind] == req.Generation
}
