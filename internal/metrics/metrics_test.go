package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-inventory/internal/workflow"
)

var _ workflow.Observer = (*Metrics)(nil)

func TestObserver(t *testing.T) {
	m := New()

	m.Transition("item-deletion", workflow.StateAwaitingTarget, workflow.StateAwaitingReason, workflow.EventTargetSelected)
	m.Transition("item-deletion", workflow.StateAwaitingTarget, workflow.StateAwaitingReason, workflow.EventTargetSelected)
	m.LookupCompleted("item-deletion", workflow.LookupSearch, "stale")
	m.CommitCompleted("item-deletion", workflow.OutcomeRejected, workflow.CategoryBusinessRule, 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues(
		"item-deletion", "awaiting_target", "awaiting_reason", "target_selected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lookups.WithLabelValues("item-deletion", "search", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits.WithLabelValues("item-deletion", "rejected", "business_rule")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CommitDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RegisterSessionGauge(func() int { return 3 })
	m.CommitCompleted("supplier-edit", workflow.OutcomeSuccess, "", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "inventory_workflow_sessions_active 3")
	assert.Contains(t, body, `flow="supplier-edit",outcome="success"} 1`)
}
