package launcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_NoHandleIsNoop(t *testing.T) {
	engine := newMockEngine()
	tr := NewTracker(engine, "docker", time.Second, nil)

	require.NoError(t, tr.Cleanup())
	assert.Empty(t, engine.stops)
}

func TestTracker_StopsOnceOnly(t *testing.T) {
	engine := newMockEngine()
	tr := NewTracker(engine, "docker", time.Second, nil)
	tr.Track(Handle{ID: "abc", Name: "vidgen-webui"})

	require.NoError(t, tr.Cleanup())
	require.NoError(t, tr.Cleanup())
	assert.Equal(t, []string{"abc"}, engine.stops)
	assert.Empty(t, engine.kills)
}

func TestTracker_KillsWhenStopFails(t *testing.T) {
	engine := newMockEngine()
	engine.stopErr = errors.New("timeout")
	tr := NewTracker(engine, "docker", time.Second, nil)
	tr.Track(Handle{ID: "abc", Name: "vidgen-webui"})

	require.NoError(t, tr.Cleanup())
	assert.Equal(t, []string{"abc"}, engine.kills)
}

func TestTracker_UnstoppableIsReported(t *testing.T) {
	engine := newMockEngine()
	engine.stopErr = errors.New("timeout")
	engine.killErr = errors.New("permission denied")
	tr := NewTracker(engine, "podman", time.Second, nil)
	tr.Track(Handle{ID: "abc", Name: "vidgen-webui"})

	err := tr.Cleanup()
	require.ErrorIs(t, err, ErrStopFailed)
	assert.Equal(t, KindRuntime, KindOf(err))
	assert.Equal(t, "Stop it manually with 'podman rm -f vidgen-webui'", HintOf(err))
}

func TestTracker_Release(t *testing.T) {
	engine := newMockEngine()
	tr := NewTracker(engine, "docker", time.Second, nil)
	tr.Track(Handle{ID: "abc"})
	tr.Release()

	require.NoError(t, tr.Cleanup())
	assert.Empty(t, engine.stops)
}
