package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotEmptyBeforeAnyRecord(t *testing.T) {
	s := New(time.Minute)
	snap := s.Snapshot("echo")
	assert.Equal(t, 0, snap.Count)
}

func TestSnapshotAggregatesAcrossShards(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewWithClock(time.Minute, clock)

	for i := 0; i < 100; i++ {
		s.Record("echo", 1*time.Millisecond, time.Duration(i+1)*time.Millisecond, OutcomeOK)
	}
	for i := 0; i < 10; i++ {
		s.Record("echo", 1*time.Millisecond, 5*time.Millisecond, OutcomeTimeout)
	}

	snap := s.Snapshot("echo")
	assert.Equal(t, 110, snap.Count)
	assert.InDelta(t, 10.0/110.0, snap.ErrorRate, 0.001)
	assert.Greater(t, snap.P99, snap.P50)
}

func TestSnapshotExpiresSamplesOutsideWindow(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewWithClock(10*time.Millisecond, clock)

	s.Record("echo", 0, time.Millisecond, OutcomeOK)
	now = now.Add(20 * time.Millisecond)

	snap := s.Snapshot("echo")
	assert.Equal(t, 0, snap.Count, "samples older than the window should age out")
}
