package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/escalation"
)

type countingScanner struct {
	mu     sync.Mutex
	calls  []time.Time
	result escalation.ScanResult
	err    error
}

func (c *countingScanner) Scan(_ context.Context, now time.Time) (escalation.ScanResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, now)
	return c.result, c.err
}

func (c *countingScanner) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestScanJobRunsImmediately(t *testing.T) {
	s, err := NewScheduler(zap.NewNop())
	require.NoError(t, err)
	scanner := &countingScanner{}

	require.NoError(t, s.RegisterScanJob(scanner, config.EscalationConfig{
		ScanInterval: time.Hour,
		ScanTimeout:  time.Minute,
	}))
	require.Len(t, s.Jobs(), 1)
	assert.Equal(t, scanJobName, s.Jobs()[0].Name())

	s.Start()
	defer func() { require.NoError(t, s.Stop()) }()

	require.Eventually(t, func() bool { return scanner.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunScanUsesClockAndLogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s, err := NewScheduler(zap.New(core))
	require.NoError(t, err)
	fixed := time.Date(2024, 1, 5, 16, 50, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	scanner := &countingScanner{result: escalation.ScanResult{
		Checked: 2,
		Errors:  []escalation.TicketError{{TicketID: "t-1", Err: errors.New("db gone")}},
	}}
	s.RunScan(context.Background(), scanner)
	require.Equal(t, []time.Time{fixed}, scanner.calls)
	assert.Equal(t, 1, logs.FilterMessage("escalation failed for ticket").Len())

	scanner.err = errors.New("list failed")
	s.RunScan(context.Background(), scanner)
	assert.Equal(t, 1, logs.FilterMessage("escalation scan failed").Len())
	require.NoError(t, s.Stop())
}
