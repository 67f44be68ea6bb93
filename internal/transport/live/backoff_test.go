package live

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, expected := range want {
		assert.Equal(t, expected, b.Delay(i+1), "attempt %d", i+1)
	}
}

func TestBackoff_MonotoneAndCapped(t *testing.T) {
	b := Backoff{Base: 250 * time.Millisecond, Max: 3 * time.Second}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 64; attempt++ {
		d := b.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 3*time.Second)
		prev = d
	}
}

func TestBackoff_Defaults(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff{}.Delay(1))
	assert.Equal(t, time.Second, Backoff{}.Delay(0))
	assert.Equal(t, DefaultMaxDelay, Backoff{}.Delay(100))
}
