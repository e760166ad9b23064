package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultLookupTimeout = 5 * time.Second
	defaultCommitTimeout = 15 * time.Second
)

// SessionConfig tunes a session's I/O timeouts
type SessionConfig struct {
	LookupTimeout time.Duration
	CommitTimeout time.Duration
}

// View is the full presentation state of a dialog. Everything a client
// renders is derived from it.
type View struct {
	ID              string           `json:"id"`
	Flow            string           `json:"flow"`
	Title           string           `json:"title,omitempty"`
	Open            bool             `json:"open"`
	State           State            `json:"state"`
	RequiresScope   bool             `json:"requires_scope"`
	RequiresReason  bool             `json:"requires_reason"`
	RequiresPayload bool             `json:"requires_payload"`
	Reasons         []string         `json:"reasons,omitempty"`
	Selection       Snapshot         `json:"selection"`
	Scopes          []Option         `json:"scopes,omitempty"`
	Options         []Option         `json:"options"`
	SearchEnabled   bool             `json:"search_enabled"`
	NoMatches       bool             `json:"no_matches"`
	Loading         bool             `json:"loading"`
	Notice          *Notice          `json:"notice,omitempty"`
	Error           *ClassifiedError `json:"error,omitempty"`
	LastNotice      *Notification    `json:"last_notification,omitempty"`
}

// Session is one open dialog instance. All events are serialised by a single
// mutex; lookups run on their own goroutines and apply their results under the
// same mutex only if they still match the selection. At most one commit is in
// flight: while Submitting every event except Close fails with ErrBusy.
type Session struct {
	id     string
	flow   Flow
	orch   *Orchestrator
	cfg    SessionConfig
	log    zerolog.Logger
	obs    Observer

	mu         sync.Mutex
	open       bool
	epoch      uint64
	sel        *Selection
	machine    *Machine
	coord      *Coordinator
	notice     *Notice
	lastNotice *Notification
	debounce   *time.Timer
	debounceID uint64
	pending    int
	idle       chan struct{}
}

// NewSession creates a closed dialog for flow. Call Open before sending events.
func NewSession(id string, flow Flow, orch *Orchestrator, cfg SessionConfig) (*Session, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}
	if orch == nil {
		orch = NewOrchestrator(Dependencies{})
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = defaultCommitTimeout
	}
	f := flow.withDefaults()

	idle := make(chan struct{})
	close(idle)

	return &Session{
		id:      id,
		flow:    f,
		orch:    orch,
		cfg:     cfg,
		log:     orch.log.With().Str("session_id", id).Str("flow", f.Name).Logger(),
		obs:     orch.observer,
		sel:     NewSelection(f.RequiresScope),
		machine: NewMachine(),
		coord:   NewCoordinator(&f),
		idle:    idle,
	}, nil
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// FlowName returns the name of the session's flow
func (s *Session) FlowName() string {
	return s.flow.Name
}

// Open starts the dialog from a clean state and loads the parent list.
// Opening an open dialog is a no-op.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return
	}
	s.resetLocked()
	s.open = true
	s.lastNotice = nil
	s.fireLocked(EventClose, Capabilities{})

	if req, ok := s.coord.PlanScopes(); ok {
		s.startLookupLocked(req)
	}
}

// Close discards the dialog's state. A commit still in flight finishes but
// its result is ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open && s.machine.State() != StateSucceeded {
		return
	}
	s.open = false
	s.resetLocked()
	s.fireLocked(EventClose, Capabilities{})
}

// SetScope selects the parent entity by ID; "" clears it. Everything chosen
// under the previous scope is cleared and the workflow returns to AwaitingTarget.
func (s *Session) SetScope(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	if !s.flow.RequiresScope {
		return fmt.Errorf("%w: flow %s has no scope", ErrInvalidTransition, s.flow.Name)
	}

	var scope *Option
	if id != "" {
		var ok bool
		if scope, ok = s.coord.FindScope(id); !ok {
			return fmt.Errorf("%w: scope %s", ErrUnknownOption, id)
		}
	}

	s.stopDebounceLocked()
	s.sel.SetScope(scope)
	s.coord.ClearSearch()
	s.coord.PlanDetails(s.sel.Snapshot())
	s.notice = nil
	s.fireLocked(EventScopeChanged, Capabilities{})
	return nil
}

// SetSearchText updates the child search text. A search is issued after the
// debounce interval if the text is long enough and the scope is set.
func (s *Session) SetSearchText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	if s.machine.State() == StateAwaitingConfirmation {
		return fmt.Errorf("%w: cannot search while confirming", ErrInvalidTransition)
	}

	s.sel.SetSearchText(text)
	s.stopDebounceLocked()

	snap := s.sel.Snapshot()
	if !s.coord.SearchEnabled(snap) {
		s.coord.ClearSearch()
		return nil
	}

	s.beginLocked()
	id := s.debounceID
	s.debounce = time.AfterFunc(s.flow.Debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.endLocked()

		if s.debounceID != id || !s.open {
			return
		}
		s.debounce = nil
		if req, ok := s.coord.PlanSearch(s.sel.Snapshot()); ok {
			s.startLookupLocked(req)
		}
	})
	return nil
}

// SelectTarget selects a visible option by ID and advances to the reason or
// confirmation step. "" clears the target.
func (s *Session) SelectTarget(id string) error {
	if id == "" {
		return s.ClearTarget()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	snap := s.sel.Snapshot()
	target, ok := s.coord.FindOption(id, snap.Target)
	if !ok {
		return fmt.Errorf("%w: target %s", ErrUnknownOption, id)
	}

	prospective := snap
	prospective.Target = target
	from := s.machine.State()
	to, n, err := s.machine.Fire(EventTargetSelected, s.guardContext(prospective, Capabilities{}))
	if err != nil {
		return err
	}
	if n != nil {
		s.notice = n
		return nil
	}
	s.observeLocked(from, to, EventTargetSelected)

	if err := s.sel.SetTarget(target); err != nil {
		return err
	}
	s.stopDebounceLocked()
	s.notice = nil
	if req, ok := s.coord.PlanDetails(s.sel.Snapshot()); ok {
		s.startLookupLocked(req)
	}
	return nil
}

// ClearTarget deselects the target and returns to AwaitingTarget
func (s *Session) ClearTarget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	from := s.machine.State()
	to, _, err := s.machine.Fire(EventTargetCleared, s.guardContext(s.sel.Snapshot(), Capabilities{}))
	if err != nil {
		return err
	}
	s.observeLocked(from, to, EventTargetCleared)

	_ = s.sel.SetTarget(nil)
	s.coord.PlanDetails(s.sel.Snapshot())
	s.notice = nil
	return nil
}

// SetReason stores the justification. Flows with a reason catalog reject
// values outside it.
func (s *Session) SetReason(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEditableLocked(); err != nil {
		return err
	}
	if reason != "" && !s.flow.allowsReason(reason) {
		return fmt.Errorf("%w: %s", ErrUnknownReason, reason)
	}
	s.sel.SetReason(reason)
	if s.notice != nil && s.notice.Key == KeyReasonRequired {
		s.notice = nil
	}
	return nil
}

// SetPayload replaces the edit payload
func (s *Session) SetPayload(payload map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEditableLocked(); err != nil {
		return err
	}
	s.sel.SetPayload(payload)
	if s.notice != nil && (s.notice.Key == KeyPayloadInvalid || s.notice.Key == KeyPayloadRequired) {
		s.notice = nil
	}
	return nil
}

// Submit asks for confirmation. Missing input leaves the state unchanged and
// sets a local notice.
func (s *Session) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	_, err := s.applyLocked(EventSubmit, Capabilities{})
	return err
}

// Decline leaves confirmation for AwaitingTarget with the selection kept
func (s *Session) Decline(ctx context.Context) error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, err := s.applyLocked(EventDecline, Capabilities{}); err != nil {
		s.mu.Unlock()
		return err
	}
	n := Notification{
		Flow:     s.flow.Name,
		Message:  messages[KeyCancelled],
		Severity: SeverityInfo,
		TargetID: s.sel.Snapshot().TargetID(),
	}
	s.lastNotice = &n
	s.mu.Unlock()

	s.orch.Notify(ctx, n)
	return nil
}

// Confirm commits the confirmed selection. The commit runs without holding
// the lock; its result is applied only if the dialog was not closed meanwhile.
// Guard failures such as read-only mode leave the state unchanged with a
// notice and never reach the committer.
func (s *Session) Confirm(ctx context.Context, caps Capabilities) error {
	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	moved, err := s.applyLocked(EventConfirm, caps)
	if err != nil || !moved {
		s.mu.Unlock()
		return err
	}

	snap := s.sel.Snapshot()
	cmd := Command{
		Flow:     s.flow.Name,
		ScopeID:  snap.ScopeID(),
		TargetID: snap.TargetID(),
		Reason:   snap.Reason,
		Payload:  snap.Payload,
		Actor:    caps.Actor,
		IsAdmin:  caps.IsAdmin,
	}
	epoch := s.epoch
	flow := s.flow
	s.mu.Unlock()

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CommitTimeout)
	defer cancel()
	res := s.orch.Execute(commitCtx, &flow, cmd, caps)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch || s.machine.State() != StateSubmitting {
		s.log.Debug().
			Str("target_id", cmd.TargetID).
			Bool("ok", res.OK).
			Msg("Discarding commit result for closed dialog")
		return nil
	}

	switch {
	case res.OK:
		s.fireLocked(EventCommitSucceeded, caps)
		s.lastNotice = &Notification{
			Flow:     s.flow.Name,
			Message:  s.flow.SuccessMessage,
			Severity: SeveritySuccess,
			TargetID: cmd.TargetID,
		}
		// Succeeded closes the dialog; the state stays visible until reopened.
		s.resetLocked()
		s.open = false
	default:
		ce := res.Error
		if res.Notice != nil {
			ce = &ClassifiedError{
				Category: CategoryValidation,
				Key:      res.Notice.Key,
				Severity: res.Notice.Severity,
				Message:  res.Notice.Message,
			}
		}
		from := s.machine.State()
		if err := s.machine.Fail(*ce); err != nil {
			return err
		}
		s.observeLocked(from, s.machine.State(), EventCommitFailed)
	}
	return nil
}

// View returns the current presentation state
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.sel.Snapshot()
	v := View{
		ID:              s.id,
		Flow:            s.flow.Name,
		Title:           s.flow.Title,
		Open:            s.open,
		State:           s.machine.State(),
		RequiresScope:   s.flow.RequiresScope,
		RequiresReason:  s.flow.RequiresReason,
		RequiresPayload: s.flow.RequiresPayload,
		Reasons:         append([]string(nil), s.flow.Reasons...),
		Selection:       snap,
		Scopes:          s.coord.Scopes(),
		Options:         s.coord.Options(snap.Target),
		SearchEnabled:   s.coord.SearchEnabled(snap),
		NoMatches:       s.coord.NoMatches(),
		Loading:         s.pending > 0,
		Error:           s.machine.Error(),
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	if s.lastNotice != nil {
		n := *s.lastNotice
		v.LastNotice = &n
	}
	return v
}

// Wait blocks until no debounce timer or lookup is pending
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ── locked helpers ────────────────────────────────────────────────────────────

func (s *Session) checkLocked() error {
	if !s.open {
		return ErrClosed
	}
	if s.machine.State() == StateSubmitting {
		return ErrBusy
	}
	return nil
}

func (s *Session) checkEditableLocked() error {
	if err := s.checkLocked(); err != nil {
		return err
	}
	if s.machine.State() == StateAwaitingConfirmation {
		return fmt.Errorf("%w: decline confirmation to edit", ErrInvalidTransition)
	}
	return nil
}

func (s *Session) guardContext(snap Snapshot, caps Capabilities) GuardContext {
	return GuardContext{Flow: &s.flow, Selection: snap, Caps: caps}
}

// applyLocked fires a guarded event against the current selection. A blocked
// event sets the notice and reports false.
func (s *Session) applyLocked(event Event, caps Capabilities) (bool, error) {
	from := s.machine.State()
	to, n, err := s.machine.Fire(event, s.guardContext(s.sel.Snapshot(), caps))
	if err != nil {
		return false, err
	}
	if n != nil {
		s.notice = n
		return false, nil
	}
	s.notice = nil
	s.observeLocked(from, to, event)
	return true, nil
}

// fireLocked fires an unguarded event
func (s *Session) fireLocked(event Event, caps Capabilities) {
	from := s.machine.State()
	to, _, err := s.machine.Fire(event, s.guardContext(s.sel.Snapshot(), caps))
	if err != nil {
		s.log.Error().Err(err).Str("event", string(event)).Msg("Unexpected transition failure")
		return
	}
	s.observeLocked(from, to, event)
}

func (s *Session) observeLocked(from, to State, event Event) {
	s.obs.Transition(s.flow.Name, from, to, event)
}

func (s *Session) resetLocked() {
	s.stopDebounceLocked()
	s.epoch++
	s.sel.Reset()
	s.coord.Reset()
	s.notice = nil
}

// stopDebounceLocked cancels a scheduled search. A timer that already fired
// sees the bumped debounceID and does nothing.
func (s *Session) stopDebounceLocked() {
	s.debounceID++
	if s.debounce != nil && s.debounce.Stop() {
		s.endLocked()
	}
	s.debounce = nil
}

func (s *Session) beginLocked() {
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
}

func (s *Session) endLocked() {
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

// startLookupLocked runs req on its own goroutine
func (s *Session) startLookupLocked(req LookupRequest) {
	s.beginLocked()
	lookup := s.flow.Lookup
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LookupTimeout)
		defer cancel()

		var (
			opts   []Option
			detail *Option
			err    error
		)
		switch req.Kind {
		case LookupScopes:
			opts, err = lookup.Scopes(ctx)
		case LookupSearch:
			opts, err = lookup.Search(ctx, req.ScopeID, req.Query, req.Limit)
		case LookupDetails:
			detail, err = lookup.Details(ctx, req.TargetID)
		}

		outcome := "ok"
		if err != nil {
			outcome = "error"
			s.log.Warn().Err(err).
				Str("lookup", string(req.Kind)).
				Msg("Lookup failed")
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		defer s.endLocked()

		snap := s.sel.Snapshot()
		applied := false
		switch req.Kind {
		case LookupScopes:
			applied = s.coord.AcceptScopes(req, opts, err)
		case LookupSearch:
			applied = s.coord.AcceptSearch(req, opts, err, snap)
		case LookupDetails:
			if d, ok := s.coord.AcceptDetails(req, detail, err, snap); ok {
				applied = s.sel.RefreshTarget(*d)
			}
		}
		if !applied && err == nil {
			outcome = "stale"
		}
		s.obs.LookupCompleted(s.flow.Name, req.Kind, outcome)
	}()
}
