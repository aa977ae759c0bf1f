package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScheduler_TriggerNow_RunsReconciler verifies that a manual trigger
// runs the wrapped reconciler exactly once.
func TestScheduler_TriggerNow_RunsReconciler(t *testing.T) {
	platform := &fakePlatform{}
	vs := &fakeVectorStore{}
	toolCache := &fakeToolCache{}
	mcpCache := &fakeMCPServerCache{}
	r := New(platform, vs, toolCache, mcpCache, testLogger())
	s := NewScheduler(r, testLogger())

	err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	require.True(t, vs.schemaEnsured)
}

// TestScheduler_TriggerNow_RejectsOverlap verifies the non-overlap guard: a
// trigger that arrives while the gate is already held is rejected rather
// than queued, since the gate is the same one scheduled ticks use.
func TestScheduler_TriggerNow_RejectsOverlap(t *testing.T) {
	r := New(&fakePlatform{}, &fakeVectorStore{}, &fakeToolCache{}, &fakeMCPServerCache{}, testLogger())
	s := NewScheduler(r, testLogger())

	s.gate <- struct{}{} // simulate an in-flight cycle
	defer func() { <-s.gate }()

	err := s.TriggerNow(context.Background())
	require.Error(t, err)
}

// TestScheduler_StartAndStop verifies the scheduler starts a cron entry and
// stops cleanly without hanging.
func TestScheduler_StartAndStop(t *testing.T) {
	r := New(&fakePlatform{}, &fakeVectorStore{}, &fakeToolCache{}, &fakeMCPServerCache{}, testLogger())
	s := NewScheduler(r, testLogger())

	require.NoError(t, s.Start(time.Hour))
	s.Stop()
}
