package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mediabrowse/mediabrowse/internal/media"
)

const (
	invalidDataMarker = "Invalid data found when processing input"

	// Files the decoder reports as malformed are renamed with this
	// suffix so they are never re-probed.
	unknownFileSuffix = ".unknown"
)

type (
	// ProcessRunner abstracts decoder invocation for the service;
	// satisfied by *Runner.
	ProcessRunner interface {
		Run(ctx context.Context, args []string, input InputWriter, output io.Writer) ([]string, error)
		CancelAll() int
		Running() []ProcessHandle
	}

	Config struct {
		FfmpegBinPath string
	}

	// Service exposes the two public probing operations: describing a
	// media file and extracting a representative frame from it. The
	// service is stateless between invocations; the only shared state
	// is the runner's process registry.
	Service struct {
		runner ProcessRunner
		hasher media.ContentHasher
	}
)

// NewService resolves the decoder binary once at startup and returns
// the probing service. The binary is a required external dependency;
// there is no fallback fetching.
func NewService(config Config, hasher media.ContentHasher) (*Service, error) {
	runner, err := NewRunner(config.FfmpegBinPath)
	if err != nil {
		return nil, err
	}

	return &Service{runner: runner, hasher: hasher}, nil
}

// Describe probes the file at path and assembles its authoritative
// metadata record: content hash, MIME type, coarse kind, dimensions,
// frame rate, duration and the raw stream lines.
//
// A file the decoder reports as containing invalid data is renamed
// with a '.unknown' suffix as a side effect, and ErrInvalidInput is
// returned; the rename prevents repeated re-probing of a known-bad
// file.
func (service *Service) Describe(ctx context.Context, path string) (*media.Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect file %s: %w", path, err)
	}

	contentHash, err := service.hasher.HashFile(path)
	if err != nil {
		return nil, err
	}

	lines, err := service.runner.Run(ctx, []string{"-i", path}, nil, nil)
	if err != nil {
		return nil, err
	}

	if lo.SomeBy(lines, func(line string) bool { return strings.Contains(line, invalidDataMarker) }) {
		log.Warnf("Decoder reported invalid data for %s, marking file as unknown\n", path)
		if renameErr := os.Rename(path, path+unknownFileSuffix); renameErr != nil {
			log.Errorf("Failed to mark %s as unknown: %v\n", path, renameErr)
		}

		return nil, fmt.Errorf("%s: %w", path, ErrInvalidInput)
	}

	result, err := Resolve(Parse(lines))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// The classifier only emits audio/, image/ and video/ types, so
	// the kind derivation cannot fail here.
	kind, _ := media.KindFromMime(result.MimeType)

	metadata := &media.Metadata{
		ID:            uuid.New(),
		ContentHash:   contentHash,
		Location:      path,
		ContentLength: info.Size(),
		ContentType:   result.MimeType,
		Kind:          kind,
		Width:         result.Width,
		Height:        result.Height,
		FrameRate:     result.FrameRate,
		AudioStreams:  result.AudioStreamLines,
		VideoStreams:  result.VideoStreamLines,
		UploadedOn:    info.ModTime().UTC(),
	}

	if result.Duration != nil {
		durationMs := result.Duration.Milliseconds()
		metadata.DurationMs = &durationMs
	}

	log.Debugf("Described %s as %s\n", path, metadata)
	return metadata, nil
}

// GenerateThumbnail extracts a single frame from the file at path at
// the given time offset, writing it to outputPath. The output path
// must not already exist — this is a uniqueness precondition on the
// caller, checked before the decoder is ever invoked.
//
// On success the produced artifact is described through the full
// probing pipeline, so the returned record carries the thumbnail's
// own hash and dimensions rather than extraction-time assumptions.
// Ownership of the artifact transfers to the caller on return.
func (service *Service) GenerateThumbnail(ctx context.Context, path string, offset time.Duration, outputPath string) (*media.Metadata, error) {
	if _, err := os.Stat(outputPath); err == nil {
		return nil, fmt.Errorf("%s: %w", outputPath, ErrOutputExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to check thumbnail output path %s: %w", outputPath, err)
	}

	args := []string{
		"-ss", formatSeekOffset(offset),
		"-i", path,
		"-f", "mjpeg",
		"-vframes", "1",
		outputPath,
	}
	if _, err := service.runner.Run(ctx, args, nil, nil); err != nil {
		return nil, err
	}

	if _, err := os.Stat(outputPath); err != nil {
		return nil, fmt.Errorf("%s: %w", outputPath, ErrMissingOutput)
	}

	return service.Describe(ctx, outputPath)
}

// Running snapshots the in-flight decoder invocations.
func (service *Service) Running() []ProcessHandle {
	return service.runner.Running()
}

// Shutdown terminates any in-flight decoder invocations through the
// registry's out-of-band cancellation path.
func (service *Service) Shutdown() {
	if cancelled := service.runner.CancelAll(); cancelled > 0 {
		log.Infof("Cancelled %d in-flight decoder invocation(s)\n", cancelled)
	}
}

func formatSeekOffset(offset time.Duration) string {
	hours := int(offset.Hours())
	minutes := int(offset.Minutes()) % 60
	seconds := int(offset.Seconds()) % 60
	millis := int(offset.Milliseconds()) % 1000

	return fmt.Sprintf("%d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
