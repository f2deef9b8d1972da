package cli

import (
	"context"
	"os"
	goruntime "runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalContext(t *testing.T) {
	t.Run("Cancel Has No Signal", func(t *testing.T) {
		ctx := NewSignalContext(context.Background())
		ctx.Cancel()
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
		assert.Nil(t, ctx.Signal())
	})

	t.Run("Parent Cancel", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		ctx := NewSignalContext(parent)
		defer ctx.Cancel()
		cancel()
		<-ctx.Done()
		assert.Nil(t, ctx.Signal())
	})

	t.Run("Interrupt", func(t *testing.T) {
		if goruntime.GOOS == "windows" {
			t.Skip("interrupt cannot be sent to the own process on windows")
		}
		ctx := NewSignalContext(context.Background())
		defer ctx.Cancel()

		self, err := os.FindProcess(os.Getpid())
		require.NoError(t, err)
		require.NoError(t, self.Signal(os.Interrupt))

		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("context was not cancelled by the signal")
		}
		assert.Equal(t, os.Interrupt, ctx.Signal())
		assert.EqualError(t, context.Cause(ctx), "received signal interrupt")
	})
}
