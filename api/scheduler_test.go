package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOverdueScheduler_RunNow(t *testing.T) {
	// GIVEN: One overdue bank slip
	ts := setupTestServer(t)
	require.NoError(t, ts.h.loadOverdueSlipsScenario(context.Background()))
	sched := NewOverdueScheduler(ts.h.Sales, zaptest.NewLogger(t))
	assert.Nil(t, sched.LastReport())

	// WHEN: Running a check
	sched.RunNow()

	// THEN: The report is kept
	report := sched.LastReport()
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Count)
}

func TestOverdueScheduler_StartStop(t *testing.T) {
	ts := setupTestServer(t)
	sched := NewOverdueScheduler(ts.h.Sales, zaptest.NewLogger(t))
	sched.CheckInterval = 10 * time.Millisecond

	sched.Start()
	assert.Eventually(t, func() bool { return sched.LastReport() != nil }, time.Second, 5*time.Millisecond)
	sched.Stop()

	// Stop is idempotent and a stopped scheduler can start again
	sched.Stop()
	sched.Start()
	sched.Stop()
}

func TestOverdueScheduler_Disabled(t *testing.T) {
	ts := setupTestServer(t)
	sched := NewOverdueScheduler(ts.h.Sales, zaptest.NewLogger(t))
	sched.Enabled = false

	sched.Start()
	sched.Stop()

	assert.Nil(t, sched.LastReport())
}
