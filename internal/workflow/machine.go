package workflow

import "fmt"

// State is the dialog's position in the workflow
type State string

const (
	StateAwaitingTarget       State = "awaiting_target"
	StateAwaitingReason       State = "awaiting_reason"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateSubmitting           State = "submitting"
	StateSucceeded            State = "succeeded"
	StateRecoverableError     State = "recoverable_error"
)

// Event drives a transition
type Event string

const (
	EventTargetSelected  Event = "target_selected"
	EventTargetCleared   Event = "target_cleared"
	EventSubmit          Event = "submit"
	EventDecline         Event = "decline"
	EventConfirm         Event = "confirm"
	EventCommitSucceeded Event = "commit_succeeded"
	EventCommitFailed    Event = "commit_failed"
	EventScopeChanged    Event = "scope_changed"
	EventClose           Event = "close"
)

// Notice is a local form-level message. It never puts the workflow into an
// error state.
type Notice struct {
	Key      MessageKey `json:"key"`
	Message  string     `json:"message"`
	Severity Severity   `json:"severity"`
}

func notice(key MessageKey) *Notice {
	return &Notice{Key: key, Message: messages[key], Severity: SeverityWarning}
}

// GuardContext is what guards see when an event fires
type GuardContext struct {
	Flow      *Flow
	Selection Snapshot
	Caps      Capabilities
}

// GuardFunc returns nil to allow a transition or a notice explaining why not
type GuardFunc func(GuardContext) *Notice

// Transition defines a state transition
type Transition struct {
	From   State
	Event  Event
	To     State
	Guards []GuardFunc
}

// TransitionKey uniquely identifies a transition
type TransitionKey struct {
	From  State
	Event Event
}

// Candidates for one key are tried in order; the first whose guards all pass
// is taken. No AwaitingTarget -> Submitting edge exists.
var transitionTable = map[TransitionKey][]Transition{
	// === Target selection ===
	{StateAwaitingTarget, EventTargetSelected}: {
		{From: StateAwaitingTarget, Event: EventTargetSelected, To: StateAwaitingReason, Guards: []GuardFunc{GuardScopeSet, GuardNeedsInput}},
		{From: StateAwaitingTarget, Event: EventTargetSelected, To: StateAwaitingConfirmation, Guards: []GuardFunc{GuardScopeSet}},
	},
	{StateAwaitingReason, EventTargetSelected}: {
		{From: StateAwaitingReason, Event: EventTargetSelected, To: StateAwaitingReason, Guards: []GuardFunc{GuardScopeSet}},
	},
	{StateRecoverableError, EventTargetSelected}: {
		{From: StateRecoverableError, Event: EventTargetSelected, To: StateAwaitingReason, Guards: []GuardFunc{GuardScopeSet, GuardNeedsInput}},
		{From: StateRecoverableError, Event: EventTargetSelected, To: StateAwaitingConfirmation, Guards: []GuardFunc{GuardScopeSet}},
	},
	{StateAwaitingTarget, EventTargetCleared}: {
		{From: StateAwaitingTarget, Event: EventTargetCleared, To: StateAwaitingTarget},
	},
	{StateAwaitingReason, EventTargetCleared}: {
		{From: StateAwaitingReason, Event: EventTargetCleared, To: StateAwaitingTarget},
	},
	{StateRecoverableError, EventTargetCleared}: {
		{From: StateRecoverableError, Event: EventTargetCleared, To: StateAwaitingTarget},
	},

	// === Submit to confirmation ===
	{StateAwaitingTarget, EventSubmit}: {
		{From: StateAwaitingTarget, Event: EventSubmit, To: StateAwaitingConfirmation, Guards: []GuardFunc{GuardTargetSet, GuardReasonSet, GuardPayloadValid}},
	},
	{StateAwaitingReason, EventSubmit}: {
		{From: StateAwaitingReason, Event: EventSubmit, To: StateAwaitingConfirmation, Guards: []GuardFunc{GuardTargetSet, GuardReasonSet, GuardPayloadValid}},
	},
	{StateRecoverableError, EventSubmit}: {
		{From: StateRecoverableError, Event: EventSubmit, To: StateAwaitingConfirmation, Guards: []GuardFunc{GuardTargetSet, GuardReasonSet, GuardPayloadValid}},
	},

	// === Confirmation ===
	{StateAwaitingConfirmation, EventDecline}: {
		{From: StateAwaitingConfirmation, Event: EventDecline, To: StateAwaitingTarget},
	},
	{StateAwaitingConfirmation, EventConfirm}: {
		{From: StateAwaitingConfirmation, Event: EventConfirm, To: StateSubmitting, Guards: []GuardFunc{GuardTargetSet, GuardReasonSet, GuardPayloadValid, GuardWritable, GuardAuthorized}},
	},

	// === Commit response ===
	{StateSubmitting, EventCommitSucceeded}: {
		{From: StateSubmitting, Event: EventCommitSucceeded, To: StateSucceeded},
	},
	{StateSubmitting, EventCommitFailed}: {
		{From: StateSubmitting, Event: EventCommitFailed, To: StateRecoverableError},
	},
}

// globalTransitions apply from any state
var globalTransitions = map[Event]State{
	EventClose:        StateAwaitingTarget,
	EventScopeChanged: StateAwaitingTarget,
}

// GetTransitions returns possible transitions for a state/event pair
func GetTransitions(from State, event Event) []Transition {
	return transitionTable[TransitionKey{From: from, Event: event}]
}

// CanTransition checks if a transition exists without evaluating guards
func CanTransition(from State, event Event) bool {
	if _, ok := globalTransitions[event]; ok {
		return true
	}
	return len(GetTransitions(from, event)) > 0
}

// ── guards ────────────────────────────────────────────────────────────────────

// GuardScopeSet requires a scope for scoped flows
func GuardScopeSet(gc GuardContext) *Notice {
	if gc.Flow.RequiresScope && gc.Selection.Scope == nil {
		return notice(KeyScopeRequired)
	}
	return nil
}

// GuardNeedsInput selects the reason or edit step
func GuardNeedsInput(gc GuardContext) *Notice {
	if !gc.Flow.requiresInput() {
		return notice(KeyNoTarget)
	}
	return nil
}

// GuardTargetSet requires a target
func GuardTargetSet(gc GuardContext) *Notice {
	if gc.Selection.Target == nil {
		return notice(KeyNoTarget)
	}
	return nil
}

// GuardReasonSet requires a reason for reason-requiring flows
func GuardReasonSet(gc GuardContext) *Notice {
	if gc.Flow.RequiresReason && gc.Selection.Reason == "" {
		return notice(KeyReasonRequired)
	}
	return nil
}

// GuardPayloadValid requires a valid payload for edit flows
func GuardPayloadValid(gc GuardContext) *Notice {
	if problem := gc.Flow.payloadProblem(gc.Selection.Payload); problem != "" {
		n := notice(KeyPayloadInvalid)
		n.Message = problem
		return n
	}
	return nil
}

// GuardWritable blocks commits in read-only mode
func GuardWritable(gc GuardContext) *Notice {
	if gc.Caps.ReadOnly {
		return notice(KeyDemoMode)
	}
	return nil
}

// GuardAuthorized requires the admin capability for admin-only flows
func GuardAuthorized(gc GuardContext) *Notice {
	if gc.Flow.RequiresAdmin && !gc.Caps.IsAdmin {
		return notice(KeyAdminRequired)
	}
	return nil
}

// ── machine ───────────────────────────────────────────────────────────────────

// Machine holds exactly one State and the classified error of a
// RecoverableError state. Not safe for concurrent use.
type Machine struct {
	state State
	err   *ClassifiedError
}

// NewMachine starts in AwaitingTarget
func NewMachine() *Machine {
	return &Machine{state: StateAwaitingTarget}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Error returns the classified error while in RecoverableError
func (m *Machine) Error() *ClassifiedError {
	if m.state != StateRecoverableError || m.err == nil {
		return nil
	}
	e := *m.err
	return &e
}

// Fire applies event. It returns the new state and, when every candidate was
// blocked by a guard, the notice of the first candidate's failing guard with
// the state unchanged. Events the current state does not accept return
// ErrInvalidTransition.
func (m *Machine) Fire(event Event, gc GuardContext) (State, *Notice, error) {
	if to, ok := globalTransitions[event]; ok {
		m.enter(to)
		return m.state, nil, nil
	}

	candidates := GetTransitions(m.state, event)
	if len(candidates) == 0 {
		return m.state, nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, m.state)
	}

	var blocked *Notice
	for _, t := range candidates {
		if n := runGuards(t.Guards, gc); n != nil {
			if blocked == nil {
				blocked = n
			}
			continue
		}
		m.enter(t.To)
		return m.state, nil, nil
	}
	return m.state, blocked, nil
}

// Fail moves Submitting to RecoverableError carrying ce
func (m *Machine) Fail(ce ClassifiedError) error {
	if _, _, err := m.Fire(EventCommitFailed, GuardContext{}); err != nil {
		return err
	}
	m.err = &ce
	return nil
}

func (m *Machine) enter(to State) {
	m.state = to
	m.err = nil
}

func runGuards(guards []GuardFunc, gc GuardContext) *Notice {
	for _, g := range guards {
		if n := g(gc); n != nil {
			return n
		}
	}
	return nil
}
