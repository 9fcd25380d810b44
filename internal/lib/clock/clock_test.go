package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClocks(t *testing.T) {
	at := time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, at, Fixed(at).Now())
	assert.Equal(t, at, Func(func() time.Time { return at }).Now())

	before := time.Now()
	got := Real{}.Now()
	assert.False(t, got.Before(before))
}

func TestFuncAdvances(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var c Clock = Func(func() time.Time {
		now = now.Add(time.Hour)
		return now
	})

	first := c.Now()
	assert.Equal(t, time.Hour, c.Now().Sub(first))
}
