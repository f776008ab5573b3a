package ffmpeg

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

// Classification is an ordered decision table over the parsed stream
// blocks: image rules first, then video, then audio. The order is
// load-bearing — a multi-purpose token set must resolve to the most
// specific type, so later tables are unreachable once an earlier one
// fires.

// imageCodecMimes maps still/animated image codec tokens to MIME
// types. Checked by exact token membership, in order, on the single
// video stream of a candidate image.
var imageCodecMimes = []struct {
	token string
	mime  string
}{
	{"mjpeg", "image/jpeg"},
	{"gif", "image/gif"},
	{"png", "image/png"},
	{"bmp", "image/bmp"},
	{"tiff", "image/tiff"},
}

// videoCodecRules is the fixed-priority codec table for video
// containers. Matching is by token prefix across all video streams.
var videoCodecRules = []struct {
	mime    string
	matches func(output *ProbeOutput) bool
}{
	{"video/mp4", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "h264")
	}},
	{"video/webm", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "vp8", "vp9") &&
			anyStreamTokenPrefix(o.AudioStreams, "vorbis", "opus")
	}},
	{"video/mpeg", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "mpeg")
	}},
	{"video/divx", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "msmpeg4v3")
	}},
	{"video/x-flv", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "vp6f", "flv")
	}},
	{"video/x-msvideo", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "rawvideo")
	}},
	{"video/x-ms-wmv", func(o *ProbeOutput) bool {
		return anyStreamTokenPrefix(o.VideoStreams, "wmv")
	}},
}

// audioCodecMimes maps audio codec token prefixes to MIME types for
// pure audio files.
var audioCodecMimes = []struct {
	prefix string
	mime   string
}{
	{"mp3", "audio/mp3"},
	{"vorbis", "audio/ogg"},
	{"pcm_", "audio/wav"},
}

func anyStreamTokenPrefix(streams []StreamDescriptor, prefixes ...string) bool {
	return lo.SomeBy(streams, func(d StreamDescriptor) bool {
		return lo.SomeBy(prefixes, func(prefix string) bool {
			return d.HasTokenPrefix(prefix)
		})
	})
}

// Classify applies the decision table and returns the concrete MIME
// type for the probed streams. It fails with ErrNoStreams when both
// block lists are empty, and otherwise distinguishes unrecognised
// video from unrecognised audio so callers can report precisely.
func Classify(output *ProbeOutput) (string, error) {
	if !output.HasStreams() {
		return "", ErrNoStreams
	}

	_, _, hasResolution := output.Resolution()

	if mime, ok := classifyImage(output, hasResolution); ok {
		return mime, nil
	}
	if mime, ok := classifyVideo(output, hasResolution); ok {
		return mime, nil
	}
	if mime, ok := classifyAudio(output, hasResolution); ok {
		return mime, nil
	}

	if len(output.VideoStreams) > 0 {
		return "", ErrUnrecognizedVideo
	}

	return "", ErrUnrecognizedAudio
}

// classifyImage matches still and animated images: exactly one video
// stream, no audio, and an extracted resolution. The token set is
// checked the same way whether or not a duration was reported — a
// spurious duration on a still image is a decoder artifact handled
// after classification, not a reason to reject the image rules.
func classifyImage(output *ProbeOutput, hasResolution bool) (string, bool) {
	if !hasResolution || len(output.AudioStreams) > 0 || len(output.VideoStreams) != 1 {
		return "", false
	}

	stream := &output.VideoStreams[0]
	for _, rule := range imageCodecMimes {
		if stream.HasToken(rule.token) {
			return rule.mime, true
		}
	}

	return "", false
}

func classifyVideo(output *ProbeOutput, hasResolution bool) (string, bool) {
	if !hasResolution || len(output.VideoStreams) == 0 {
		return "", false
	}

	for _, rule := range videoCodecRules {
		if rule.matches(output) {
			return rule.mime, true
		}
	}

	return "", false
}

func classifyAudio(output *ProbeOutput, hasResolution bool) (string, bool) {
	if hasResolution || len(output.AudioStreams) == 0 || len(output.VideoStreams) > 0 {
		return "", false
	}

	for _, rule := range audioCodecMimes {
		if anyStreamTokenPrefix(output.AudioStreams, rule.prefix) {
			return rule.mime, true
		}
	}

	return "", false
}

// ProbeResult is the combined outcome of parsing and classification,
// ready for the orchestrator to fold into a metadata record. MimeType
// is never empty; construction fails instead.
type ProbeResult struct {
	Duration         *time.Duration
	FrameRate        *float64
	Width            *int
	Height           *int
	MimeType         string
	AudioStreamLines []string
	VideoStreamLines []string
}

// Resolve classifies the parsed output and assembles the final probe
// result, applying the post-classification correction: still images
// other than gif never carry a duration, whatever the parser saw.
func Resolve(output *ProbeOutput) (*ProbeResult, error) {
	mimeType, err := Classify(output)
	if err != nil {
		return nil, err
	}

	result := &ProbeResult{
		MimeType: mimeType,
		Duration: output.Duration,
		AudioStreamLines: lo.Map(output.AudioStreams, func(d StreamDescriptor, _ int) string {
			return d.RawLine
		}),
		VideoStreamLines: lo.Map(output.VideoStreams, func(d StreamDescriptor, _ int) string {
			return d.RawLine
		}),
	}

	if width, height, ok := output.Resolution(); ok {
		result.Width = &width
		result.Height = &height
	}
	if fps, ok := output.FrameRate(); ok {
		result.FrameRate = &fps
	}

	// Sometimes the decoder thinks still images have a duration.
	if strings.HasPrefix(mimeType, "image/") && mimeType != "image/gif" {
		result.Duration = nil
	}

	return result, nil
}
