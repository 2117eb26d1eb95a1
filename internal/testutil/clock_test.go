package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Steps(t *testing.T) {
	start := time.Date(2017, 10, 1, 12, 0, 0, 0, time.UTC)
	c := NewDeterministicClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	start := time.Date(2017, 10, 1, 12, 0, 0, 0, time.UTC)
	c := NewDeterministicClock(start, time.Minute)
	c.Now()
	c.Now()

	c.Reset()

	assert.Equal(t, start, c.Now())
}
