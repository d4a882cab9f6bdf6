package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerClock_StrictlyIncreasing(t *testing.T) {
	// GIVEN: A wall clock that is stuck, then steps backwards
	stuck := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	readings := []time.Time{stuck, stuck, stuck.Add(-time.Hour), stuck.Add(time.Second)}
	i := 0
	c := &ServerClock{now: func() time.Time {
		t := readings[i]
		i++
		return t
	}}

	// WHEN: Taking four timestamps
	var got []time.Time
	for range readings {
		got = append(got, c.Now())
	}

	// THEN: Every timestamp is after the previous one
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]), "timestamp %d not after %d", i, i-1)
	}
	assert.Equal(t, stuck.Add(time.Second), got[3])
	assert.Equal(t, time.UTC, got[0].Location())
}
