package test

import (
	"io"
	"testing"

	"github.com/chalkboard/interp/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeHandleEmitAndExit(t *testing.T) {
	t.Parallel()

	log := &CallLog{}
	h := NewFakeHandle(7, log)

	read := make(chan string, 1)
	go func() {
		data, _ := io.ReadAll(h.Stdout())
		read <- string(data)
	}()
	go func() {
		_, _ = io.ReadAll(h.Stderr())
	}()

	require.NoError(t, h.Emit("hello\n"))
	h.Exit(process.ExitStatus{Code: 2})
	h.Exit(process.ExitStatus{Code: 9})

	assert.Equal(t, "hello\n", <-read)
	status, ok := <-h.Exited()
	require.True(t, ok)
	assert.Equal(t, 2, status.Code)
	_, ok = <-h.Exited()
	assert.False(t, ok, "exit channel must close after one status")
	assert.Equal(t, []string{"exit 7"}, log.Calls())
}

func TestFakeHandleTerminateAndKillModes(t *testing.T) {
	t.Parallel()

	stubborn := NewFakeHandle(1, nil).IgnoreTerminate()
	require.NoError(t, stubborn.Terminate())
	select {
	case <-stubborn.Done():
		t.Fatal("ignored terminate still exited")
	default:
	}
	require.NoError(t, stubborn.Kill())
	status := <-stubborn.Exited()
	assert.True(t, status.Killed)
	assert.Equal(t, 1, stubborn.TerminateCalls())
	assert.Equal(t, 1, stubborn.KillCalls())
}

func TestFakeHandleWrites(t *testing.T) {
	t.Parallel()

	var hooked []string
	h := NewFakeHandle(1, nil).OnWrite(func(_ *FakeHandle, data string) {
		hooked = append(hooked, data)
	})
	_, err := h.Write([]byte("a\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a\n"}, h.Writes())
	assert.Equal(t, []string{"a\n"}, hooked)

	h.FailWrites(ErrBrokenPipe)
	_, err = h.Write([]byte("b\n"))
	assert.ErrorIs(t, err, ErrBrokenPipe)
	assert.Len(t, h.Writes(), 1)
}

func TestFakeSpawnerRecordsSpawns(t *testing.T) {
	t.Parallel()

	log := &CallLog{}
	spawner := &FakeSpawner{Log: log}
	ctx := Context(t)

	first, err := spawner.Spawn(ctx, process.LaunchConfig{Path: "/bin/x"})
	require.NoError(t, err)
	spawner.Fail(assert.AnError)
	_, err = spawner.Spawn(ctx, process.LaunchConfig{Path: "/bin/x"})
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, 1, first.PID())
	assert.Equal(t, 2, spawner.Spawns())
	assert.Len(t, spawner.Handles(), 1)
	assert.Equal(t, 0, log.Index("spawn 1"))
	assert.Equal(t, 1, log.Index("spawn failed"))
	assert.Equal(t, -1, log.Index("spawn 2"))
}

func TestRecorderWaitLen(t *testing.T) {
	t.Parallel()

	rec := NewRecorder[int]()
	go func() {
		for i := 0; i < 3; i++ {
			rec.Add(i)
		}
	}()
	assert.Equal(t, []int{0, 1, 2}, rec.WaitLen(t, 3))
}

func TestStaticBuilderDefaultsPath(t *testing.T) {
	t.Parallel()

	cfg, err := StaticBuilder{}.Build(Context(t))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Path)

	_, err = StaticBuilder{Err: assert.AnError}.Build(Context(t))
	assert.ErrorIs(t, err, assert.AnError)
}
