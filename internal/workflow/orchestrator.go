package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/pesio-ai/be-inventory/internal/workflow"

// Commit outcomes reported to the Observer
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
	OutcomeBlocked  = "blocked"
)

// Observer receives workflow measurements
type Observer interface {
	Transition(flow string, from, to State, event Event)
	LookupCompleted(flow string, kind LookupKind, outcome string)
	CommitCompleted(flow, outcome string, category Category, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) Transition(string, State, State, Event)                  {}
func (nopObserver) LookupCompleted(string, LookupKind, string)              {}
func (nopObserver) CommitCompleted(string, string, Category, time.Duration) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

type nopRefresher struct{}

func (nopRefresher) OnCommitted(context.Context, string, string) {}

// Dependencies are the collaborators shared by every dialog. Nil fields get
// no-op implementations.
type Dependencies struct {
	Notifier  Notifier
	Refresher Refresher
	Observer  Observer
	Tracer    trace.Tracer
	Logger    zerolog.Logger
}

// Result is the outcome of one commit attempt. Exactly one of OK, Notice and
// Error is meaningful.
type Result struct {
	OK     bool
	Notice *Notice
	Error  *ClassifiedError
}

// Orchestrator performs guarded commits and interprets their outcome
type Orchestrator struct {
	notifier  Notifier
	refresher Refresher
	observer  Observer
	tracer    trace.Tracer
	log       zerolog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Dependencies) *Orchestrator {
	o := &Orchestrator{
		notifier:  deps.Notifier,
		refresher: deps.Refresher,
		observer:  deps.Observer,
		tracer:    deps.Tracer,
		log:       deps.Logger.With().Str("component", "workflow").Logger(),
	}
	if o.notifier == nil {
		o.notifier = nopNotifier{}
	}
	if o.refresher == nil {
		o.refresher = nopRefresher{}
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	return o
}

// Notify forwards n to the notification surface
func (o *Orchestrator) Notify(ctx context.Context, n Notification) {
	o.notifier.Notify(ctx, n)
}

// Execute re-checks the preconditions and commits cmd once. Application
// rejections are classified; transport errors and panics become the generic
// outcome and are logged, never returned.
func (o *Orchestrator) Execute(ctx context.Context, flow *Flow, cmd Command, caps Capabilities) Result {
	f := flow.withDefaults()
	flow = &f

	gc := GuardContext{
		Flow: flow,
		Selection: Snapshot{
			Target:  targetFor(cmd.TargetID),
			Reason:  cmd.Reason,
			Payload: cmd.Payload,
		},
		Caps: caps,
	}
	if n := runGuards([]GuardFunc{GuardTargetSet, GuardReasonSet, GuardPayloadValid, GuardWritable, GuardAuthorized}, gc); n != nil {
		o.observer.CommitCompleted(flow.Name, OutcomeBlocked, CategoryValidation, 0)
		return Result{Notice: n}
	}

	ctx, span := o.tracer.Start(ctx, "workflow.commit",
		trace.WithAttributes(
			attribute.String("workflow.flow", flow.Name),
			attribute.String("workflow.target_id", cmd.TargetID),
			attribute.String("workflow.actor", cmd.Actor),
		))
	defer span.End()

	start := time.Now()
	err := safeCommit(ctx, flow.Committer, cmd)
	elapsed := time.Since(start)

	if err == nil {
		span.SetStatus(codes.Ok, "")
		o.observer.CommitCompleted(flow.Name, OutcomeSuccess, "", elapsed)
		o.notifier.Notify(ctx, Notification{
			Flow:     flow.Name,
			Message:  flow.SuccessMessage,
			Severity: SeveritySuccess,
			TargetID: cmd.TargetID,
		})
		o.refresher.OnCommitted(ctx, flow.Name, cmd.TargetID)

		o.log.Info().
			Str("flow", flow.Name).
			Str("target_id", cmd.TargetID).
			Str("actor", cmd.Actor).
			Dur("elapsed", elapsed).
			Msg("Commit succeeded")
		return Result{OK: true}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var failure *Failure
	if errors.As(err, &failure) {
		ce := Classify(flow.Rules, failure)
		span.SetAttributes(attribute.String("workflow.category", string(ce.Category)))
		o.observer.CommitCompleted(flow.Name, OutcomeRejected, ce.Category, elapsed)

		o.log.Info().
			Str("flow", flow.Name).
			Str("target_id", cmd.TargetID).
			Str("category", string(ce.Category)).
			Str("code", failure.Code).
			Str("signal", failure.Message).
			Msg("Commit rejected")
		return Result{Error: &ce}
	}

	ce := Generic()
	o.observer.CommitCompleted(flow.Name, OutcomeError, ce.Category, elapsed)
	o.log.Error().Err(err).
		Str("flow", flow.Name).
		Str("target_id", cmd.TargetID).
		Msg("Commit failed")
	return Result{Error: &ce}
}

func safeCommit(ctx context.Context, c Committer, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("committer panic: %v", r)
		}
	}()
	return c.Commit(ctx, cmd)
}

func targetFor(id string) *Option {
	if id == "" {
		return nil
	}
	return &Option{ID: id}
}
