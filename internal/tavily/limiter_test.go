package tavily

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterAppliesMinimumSpacing(t *testing.T) {
	l := newLimiter(40 * time.Millisecond)

	require.NoError(t, l.wait(context.Background()))
	first := time.Now()
	require.NoError(t, l.wait(context.Background()))

	assert.GreaterOrEqual(t, time.Since(first), 35*time.Millisecond)
}

func TestLimiterRespectsContextCancellation(t *testing.T) {
	l := newLimiter(time.Second)
	require.NoError(t, l.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNilLimiterNeverWaits(t *testing.T) {
	var l *limiter
	assert.Nil(t, newLimiter(0))
	assert.NoError(t, l.wait(context.Background()))
}
