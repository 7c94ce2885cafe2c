package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/realm-gateway/pkg/errors"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustNewService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s, err := New("realm-gateway", "test", append([]Option{WithLogger(quietLogger())}, opts...)...)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresName(t *testing.T) {
	t.Parallel()
	_, err := New("", "1.0.0")
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
}

func TestService_StartStop(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []string
	var order []string
	record := func(name string) Hook {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	s := mustNewService(t,
		WithOnStart(record("start-a")),
		WithOnStart(record("start-b")),
		WithOnStop(record("stop-a")),
		WithOnStop(record("stop-b")),
		OnStateChange(func(old, new State) {
			transitions = append(transitions, old.String()+">"+new.String())
		}),
	)
	assert.Equal(t, StateUnknown, s.State())
	assert.Error(t, s.Health(context.Background()))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	assert.NoError(t, s.Health(context.Background()))
	assert.GreaterOrEqual(t, s.Uptime(), time.Duration(0))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, s.Uptime())

	assert.Equal(t, []string{"start-a", "start-b", "stop-b", "stop-a"}, order)
	assert.Equal(t, []string{
		"unknown>starting", "starting>running", "running>stopping", "stopping>stopped",
	}, transitions)

	// Stop on a terminal state is a no-op; restart is allowed.
	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
}

func TestService_StartHookFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("listen tcp :8000: address already in use")
	s := mustNewService(t, WithOnStart(func(context.Context) error { return boom }))

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, sserr.HasCode(err, sserr.CodeInternal))
	assert.Equal(t, StateFailed, s.State())
	assert.True(t, sserr.IsUnavailable(s.Health(context.Background())))
}

func TestService_StopHookFailureRunsRemainingHooks(t *testing.T) {
	t.Parallel()

	var ranFirst bool
	boom := errors.New("shutdown timed out")
	s := mustNewService(t,
		WithOnStop(func(context.Context) error { ranFirst = true; return nil }),
		WithOnStop(func(context.Context) error { return boom }),
	)
	require.NoError(t, s.Start(context.Background()))

	err := s.Stop(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, ranFirst)
	assert.Equal(t, StateFailed, s.State())
}

func TestService_StartCanceledContext(t *testing.T) {
	t.Parallel()

	s := mustNewService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Start(ctx)
	assert.True(t, sserr.IsTimeout(err))
	assert.Equal(t, StateUnknown, s.State())
}

func TestService_InvalidTransition(t *testing.T) {
	t.Parallel()

	s := mustNewService(t)
	err := s.SetState(StateStopped)
	assert.True(t, sserr.HasCode(err, sserr.CodeConflict))

	require.NoError(t, s.Start(context.Background()))
	err = s.Start(context.Background())
	assert.True(t, sserr.HasCode(err, sserr.CodeConflict))
}

func TestService_PanickingHandlerIsContained(t *testing.T) {
	t.Parallel()

	s := mustNewService(t, OnStateChange(func(State, State) { panic("observer bug") }))
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
}
