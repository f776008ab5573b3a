package ffmpeg

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates the decoder exceeded its wall-clock budget
	// and was forcibly terminated. Safe to retry with different input.
	ErrTimeout = errors.New("decoder process exceeded its time budget and was killed")

	// ErrCancelled indicates the invocation was terminated through the
	// process registry's out-of-band cancellation path.
	ErrCancelled = errors.New("decoder process was cancelled")

	// ErrInvalidInput indicates the decoder reported malformed source
	// data. The source file is renamed with a '.unknown' suffix so it
	// is never re-probed; permanent failure.
	ErrInvalidInput = errors.New("invalid data found when processing input")

	// ErrNoStreams indicates the diagnostics contained no recognisable
	// audio or video streams. Permanent failure for the file.
	ErrNoStreams = errors.New("not a valid media file: no streams found")

	// ErrUnrecognizedVideo indicates video streams were present but no
	// classification rule matched their codec tokens.
	ErrUnrecognizedVideo = errors.New("invalid video or photo file: unrecognised codec")

	// ErrUnrecognizedAudio indicates audio streams were present but no
	// classification rule matched their codec tokens.
	ErrUnrecognizedAudio = errors.New("invalid audio file: unrecognised codec")

	// ErrMissingOutput indicates a frame extraction ran to completion
	// but the expected artifact was never produced.
	ErrMissingOutput = errors.New("frame extraction produced no output artifact")

	// ErrOutputExists indicates the caller supplied a thumbnail output
	// path which already exists; callers must choose a fresh path.
	ErrOutputExists = errors.New("thumbnail output path already exists")
)

// SpawnError indicates the decoder binary could not be started at all
// (missing or unexecutable). Fatal to the call and not retried.
type SpawnError struct {
	BinPath string
	err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn decoder process '%s': %v", e.BinPath, e.err)
}

func (e *SpawnError) Unwrap() error { return e.err }
