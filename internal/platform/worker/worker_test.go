package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Wait(ctx, time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitZeroReturnsImmediately(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
}

func TestLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cycles := 0
	err := Loop(ctx, LoopConfig{
		Name: "test",
		Run: func(context.Context) error {
			cycles++
			if cycles >= 3 {
				cancel()
			}

			return nil
		},
		NextInterval: func() time.Duration { return time.Millisecond },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, cycles, 3)
}

func TestLoopReportsErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	errCycle := errors.New("cycle failed")

	var got error

	err := Loop(ctx, LoopConfig{
		Name: "test",
		Run: func(context.Context) error {
			cancel()
			return errCycle
		},
		NextInterval: func() time.Duration { return time.Millisecond },
		OnError:      func(err error) { got = err },
	})

	require.Error(t, err)
	assert.ErrorIs(t, got, errCycle)
}
