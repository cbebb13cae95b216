package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsBurstThenDenies(t *testing.T) {
	l := New(time.Second, 2)
	assert.True(t, l.Allow("1.2.3.4"))
	assert.True(t, l.Allow("1.2.3.4"))
	assert.False(t, l.Allow("1.2.3.4"))
}

func TestLimiterIsPerIP(t *testing.T) {
	l := New(time.Second, 1)
	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
}
