package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

var log = logger.Get("FFmpeg")

// DefaultProcessTimeout is the wall-clock budget for a single decoder
// invocation. Probing and single-frame extraction are bounded
// operations; anything longer indicates a hung or malicious input.
const DefaultProcessTimeout = time.Minute * 2

// InputWriter streams payload bytes into the decoder's stdin. The
// writer is closed by the runner once the callback returns.
type InputWriter func(io.Writer) error

// Runner launches the external decoder and captures its diagnostic
// output. Each invocation is tracked in a process-wide registry for
// the duration of the call, enabling out-of-band cancellation.
type Runner struct {
	binPath  string
	timeout  time.Duration
	registry processRegistry
}

// NewRunner resolves the decoder binary and returns a runner bound to
// it. The binary is a required external dependency; if it cannot be
// located an error is returned rather than any attempt to fetch it.
func NewRunner(binPath string) (*Runner, error) {
	resolved, err := resolveBinary(binPath)
	if err != nil {
		return nil, err
	}

	return &Runner{binPath: resolved, timeout: DefaultProcessTimeout}, nil
}

func resolveBinary(binPath string) (string, error) {
	if binPath == "" {
		return "", &SpawnError{BinPath: binPath, err: errors.New("no decoder binary configured")}
	}

	if strings.ContainsRune(binPath, os.PathSeparator) {
		info, err := os.Stat(binPath)
		if err != nil {
			return "", &SpawnError{BinPath: binPath, err: err}
		}
		if info.IsDir() {
			return "", &SpawnError{BinPath: binPath, err: errors.New("path is a directory")}
		}

		return binPath, nil
	}

	resolved, err := exec.LookPath(binPath)
	if err != nil {
		return "", &SpawnError{BinPath: binPath, err: err}
	}

	return resolved, nil
}

// Run spawns the decoder with the given argument vector (no shell
// interpretation) and returns every diagnostic line it emitted, in
// arrival order. Three data flows run concurrently against the
// process: diagnostic capture, optional input streaming and optional
// output copying; Run returns once all three have completed, or once
// the timeout/cancellation fires and the process has been killed.
//
// The decoder exiting non-zero is NOT an error by itself: a bare
// inspect invocation always exits non-zero because no output file is
// given, yet its diagnostics are exactly what the caller wants.
func (runner *Runner) Run(ctx context.Context, args []string, input InputWriter, output io.Writer) ([]string, error) {
	runCtx, cancel := context.WithTimeout(ctx, runner.timeout)
	defer cancel()

	cmd := exec.Command(runner.binPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostic pipe: %w", err)
	}

	var stdin io.WriteCloser
	if input != nil {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("failed to open input pipe: %w", err)
		}
	}

	var stdout io.ReadCloser
	if output != nil {
		if stdout, err = cmd.StdoutPipe(); err != nil {
			return nil, fmt.Errorf("failed to open output pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{BinPath: runner.binPath, err: err}
	}

	pid := cmd.Process.Pid
	runner.registry.add(&ProcessHandle{
		Pid:      pid,
		CancelAt: time.Now().Add(runner.timeout),
		cancel:   cancel,
	})
	defer runner.registry.remove(pid)

	// The killer goroutine translates timeout/cancellation into
	// process termination, which in turn unblocks the data flows
	// below (their pipes reach EOF or error out).
	reaped := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			log.Warnf("Terminating decoder process %d (%v)\n", pid, runCtx.Err())
			_ = cmd.Process.Kill()
		case <-reaped:
		}
	}()

	var (
		flows     sync.WaitGroup
		inputErr  error
		outputErr error
	)

	if stdin != nil {
		flows.Add(1)
		go func() {
			defer flows.Done()
			defer stdin.Close()

			// The decoder closing its input early is normal: it often
			// only needs to read the header before exiting.
			if err := input(stdin); err != nil && !isClosedPipe(err) {
				inputErr = err
			}
		}()
	}

	if stdout != nil {
		flows.Add(1)
		go func() {
			defer flows.Done()

			if _, err := io.Copy(output, stdout); err != nil && !isClosedPipe(err) {
				outputErr = err
			}
		}()
	}

	lines := make([]string, 0)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		log.Verbosef("%s\n", line)
		lines = append(lines, line)
	}
	scanErr := scanner.Err()

	flows.Wait()
	waitErr := cmd.Wait()
	close(reaped)

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return nil, ErrTimeout
	case runCtx.Err() != nil:
		return nil, ErrCancelled
	}

	if inputErr != nil {
		return nil, fmt.Errorf("failed to stream input to decoder: %w", inputErr)
	}
	if outputErr != nil {
		return nil, fmt.Errorf("failed to copy decoder output: %w", outputErr)
	}
	if scanErr != nil {
		return nil, fmt.Errorf("failed to capture decoder diagnostics: %w", scanErr)
	}

	if waitErr != nil {
		log.Debugf("Decoder process %d exited non-zero (%v) with %d diagnostic lines\n", pid, waitErr, len(lines))
	}

	return lines, nil
}

// Cancel terminates the in-flight invocation with the given process
// id, if any. This is the out-of-band path, distinct from the
// per-invocation timeout.
func (runner *Runner) Cancel(pid int) bool {
	return runner.registry.cancel(pid)
}

// CancelAll terminates every in-flight invocation and returns how
// many were cancelled. Called during server shutdown.
func (runner *Runner) CancelAll() int {
	return runner.registry.cancelAll()
}

// Running snapshots the currently tracked invocations.
func (runner *Runner) Running() []ProcessHandle {
	return runner.registry.running()
}

// BinPath exposes the resolved decoder binary location.
func (runner *Runner) BinPath() string { return runner.binPath }

func isClosedPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, os.ErrClosed) || errors.Is(err, fs.ErrClosed)
}
