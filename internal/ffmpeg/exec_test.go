package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The runner only ever execs an argument vector, so any binary serves
// as a stand-in for the decoder. The shell is ubiquitous and lets each
// test script the exact process behaviour it needs.
const testShell = "/bin/sh"

func newTestRunner(t *testing.T, timeout time.Duration) *Runner {
	t.Helper()

	runner, err := NewRunner(testShell)
	require.NoError(t, err)
	runner.timeout = timeout

	return runner
}

func TestNewRunner_ResolvesBinary(t *testing.T) {
	runner, err := NewRunner(testShell)
	require.NoError(t, err)
	assert.Equal(t, testShell, runner.BinPath())

	runner, err = NewRunner("sh")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(runner.BinPath(), "/sh"))
}

func TestNewRunner_RejectsUnresolvableBinary(t *testing.T) {
	for _, binPath := range []string{"", "definitely-not-a-real-binary-name", "/no/such/path/ffmpeg", "/tmp"} {
		_, err := NewRunner(binPath)

		var spawnErr *SpawnError
		assert.ErrorAs(t, err, &spawnErr, "binPath %q", binPath)
	}
}

func TestRun_CapturesDiagnosticLinesInOrder(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	lines, err := runner.Run(context.Background(), []string{"-c", "echo one >&2; echo two >&2; echo three >&2"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestRun_NonZeroExitIsNotAnError(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	lines, err := runner.Run(context.Background(), []string{"-c", "echo diagnostics >&2; exit 1"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"diagnostics"}, lines)
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	runner := newTestRunner(t, time.Millisecond*100)

	start := time.Now()
	_, err := runner.Run(context.Background(), []string{"-c", "sleep 30"}, nil, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), time.Second*5, "the process must be killed, not waited for")
	assert.Empty(t, runner.Running(), "a killed invocation must be deregistered")
}

func TestRun_ContextCancellation(t *testing.T) {
	runner := newTestRunner(t, time.Second*30)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(time.Millisecond * 100)
		cancel()
	}()

	_, err := runner.Run(ctx, []string{"-c", "sleep 30"}, nil, nil)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, runner.Running())
}

func TestRun_StreamsInputToProcess(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	input := func(w io.Writer) error {
		_, err := io.WriteString(w, "from stdin\n")
		return err
	}

	lines, err := runner.Run(context.Background(), []string{"-c", "cat >&2"}, input, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, lines)
}

func TestRun_EarlyInputPipeCloseIsSuccess(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	// The process exits without draining stdin; the resulting broken
	// pipe on the input flow must not fail the invocation.
	input := func(w io.Writer) error {
		payload := bytes.Repeat([]byte("x"), 1024)
		for i := 0; i < 1024; i++ {
			if _, err := w.Write(payload); err != nil {
				return err
			}
		}

		return nil
	}

	_, err := runner.Run(context.Background(), []string{"-c", "exit 0"}, input, nil)
	assert.NoError(t, err)
}

func TestRun_CopiesProcessOutput(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	var output bytes.Buffer
	lines, err := runner.Run(context.Background(), []string{"-c", "echo payload; echo diag >&2"}, nil, &output)
	require.NoError(t, err)
	assert.Equal(t, "payload\n", output.String())
	assert.Equal(t, []string{"diag"}, lines)
}

func TestRun_RegistryTracksInflightInvocations(t *testing.T) {
	runner := newTestRunner(t, time.Second*30)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), []string{"-c", "sleep 30"}, nil, nil)
		done <- err
	}()

	assert.Eventually(t, func() bool {
		return len(runner.Running()) == 1
	}, time.Second*5, time.Millisecond*10)

	handle := runner.Running()[0]
	assert.Positive(t, handle.Pid)
	assert.True(t, handle.CancelAt.After(time.Now()))

	assert.Equal(t, 1, runner.CancelAll())
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.Empty(t, runner.Running())
}

func TestRun_CancelByPid(t *testing.T) {
	runner := newTestRunner(t, time.Second*30)

	done := make(chan error, 1)
	go func() {
		_, err := runner.Run(context.Background(), []string{"-c", "sleep 30"}, nil, nil)
		done <- err
	}()

	var pid int
	assert.Eventually(t, func() bool {
		running := runner.Running()
		if len(running) != 1 {
			return false
		}

		pid = running[0].Pid
		return true
	}, time.Second*5, time.Millisecond*10)

	assert.True(t, runner.Cancel(pid))
	assert.ErrorIs(t, <-done, ErrCancelled)
	assert.False(t, runner.Cancel(pid), "a finished invocation is no longer cancellable")
}

func TestRun_ConcurrentInvocations(t *testing.T) {
	runner := newTestRunner(t, time.Second*10)

	results := make(chan []string, 5)
	for i := 0; i < 5; i++ {
		go func(i int) {
			lines, err := runner.Run(context.Background(), []string{"-c", fmt.Sprintf("echo run-%d >&2", i)}, nil, nil)
			assert.NoError(t, err)
			results <- lines
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		lines := <-results
		if assert.Len(t, lines, 1) {
			seen[lines[0]] = true
		}
	}

	assert.Len(t, seen, 5)
	assert.Empty(t, runner.Running())
}
