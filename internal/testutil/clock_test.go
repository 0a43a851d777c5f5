package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_ZeroStartUsesEpoch(t *testing.T) {
	clock := NewClock(time.Time{}, 0)
	assert.Equal(t, Epoch, clock.Current())
}

func TestClock_FixedWhenStepIsZero(t *testing.T) {
	clock := NewClock(Epoch, 0)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Current())
}

func TestClock_NowAdvancesByStep(t *testing.T) {
	clock := NewClock(Epoch, time.Second)

	// First call returns the start reading
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Current())

	// Subsequent calls advance
	assert.Equal(t, Epoch.Add(1*time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(3*time.Second), clock.Current())
}

func TestClock_AdvanceAndReset(t *testing.T) {
	clock := NewClock(Epoch, time.Millisecond)

	clock.Now()
	clock.Advance(time.Hour)
	assert.Equal(t, Epoch.Add(time.Hour+time.Millisecond), clock.Current())

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	clock := NewClock(time.Date(2024, 1, 15, 12, 0, 0, 0, loc), 0)

	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.True(t, clock.Now().Equal(Epoch))
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock(Epoch, time.Nanosecond)
	const numGoroutines = 100
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make([][]time.Time, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		results[i] = make([]time.Time, callsPerGoroutine)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				results[idx][j] = clock.Now()
			}
		}(i)
	}

	wg.Wait()

	// Every reading is distinct
	seen := make(map[time.Time]bool)
	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < callsPerGoroutine; j++ {
			val := results[i][j]
			require.False(t, seen[val], "duplicate reading %v", val)
			seen[val] = true
		}
	}
	assert.Len(t, seen, numGoroutines*callsPerGoroutine)
	assert.Equal(t, Epoch.Add(numGoroutines*callsPerGoroutine*time.Nanosecond), clock.Current())
}
