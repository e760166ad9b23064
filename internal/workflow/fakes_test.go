package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

// fakeLookup serves suppliers and their items from memory
type fakeLookup struct {
	mu          sync.Mutex
	scopes      []Option
	items       map[string][]Option // scope id -> items
	searchCalls []string
	detailCalls []string
	searchErr   error
	detailErr   error
	gate        chan struct{} // when set, Search blocks until it is closed
	started     chan string
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		scopes: []Option{{ID: "acme", Label: "Acme Corp"}, {ID: "beta", Label: "Beta Supply"}},
		items: map[string][]Option{
			"acme": {
				{ID: "w1", Label: "Widget A"},
				{ID: "w2", Label: "Widget B"},
				{ID: "g1", Label: "Gadget"},
			},
			"beta": {{ID: "b1", Label: "Bolt"}},
			"":     {{ID: "acme", Label: "Acme Corp"}, {ID: "beta", Label: "Beta Supply"}},
		},
	}
}

func (f *fakeLookup) Scopes(ctx context.Context) ([]Option, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Option(nil), f.scopes...), nil
}

func (f *fakeLookup) Search(ctx context.Context, scopeID, query string, limit int) ([]Option, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, query)
	gate, started, err := f.gate, f.started, f.searchErr
	f.mu.Unlock()

	if started != nil {
		started <- query
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Option
	for _, o := range f.items[scopeID] {
		if strings.Contains(strings.ToLower(o.Label), strings.ToLower(query)) {
			out = append(out, o)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLookup) Details(ctx context.Context, id string) (*Option, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailCalls = append(f.detailCalls, id)
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	for _, list := range f.items {
		for _, o := range list {
			if o.ID == id {
				o.Quantity = int64Ptr(5)
				o.Price = int64Ptr(1250)
				return &o, nil
			}
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeLookup) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searchCalls)
}

// fakeCommitter records commands and returns a scripted result
type fakeCommitter struct {
	mu      sync.Mutex
	calls   []Command
	err     error
	panicV  any
	gate    chan struct{}
	started chan struct{}
}

func (c *fakeCommitter) Commit(ctx context.Context, cmd Command) error {
	c.mu.Lock()
	c.calls = append(c.calls, cmd)
	gate, started, err, p := c.gate, c.started, c.err, c.panicV
	c.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if p != nil {
		panic(p)
	}
	return err
}

func (c *fakeCommitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type recordingRefresher struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRefresher) OnCommitted(_ context.Context, flow, targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, flow+":"+targetID)
}

func (r *recordingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type harness struct {
	lookup    *fakeLookup
	committer *fakeCommitter
	notifier  *recordingNotifier
	refresher *recordingRefresher
	orch      *Orchestrator
}

func newHarness() *harness {
	h := &harness{
		lookup:    newFakeLookup(),
		committer: &fakeCommitter{},
		notifier:  &recordingNotifier{},
		refresher: &recordingRefresher{},
	}
	h.orch = NewOrchestrator(Dependencies{Notifier: h.notifier, Refresher: h.refresher})
	return h
}

func (h *harness) itemDeletion() Flow {
	return Flow{
		Name:           "item-deletion",
		RequiresScope:  true,
		RequiresReason: true,
		Reasons:        []string{"DAMAGED", "EXPIRED", "LOST", "OTHER"},
		Lookup:         h.lookup,
		Committer:      h.committer,
		SuccessMessage: "success",
		Debounce:       time.Millisecond,
	}
}

func (h *harness) supplierDeletion() Flow {
	return Flow{
		Name:          "supplier-deletion",
		RequiresAdmin: true,
		Lookup:        h.lookup,
		Committer:     h.committer,
		Debounce:      time.Millisecond,
	}
}
