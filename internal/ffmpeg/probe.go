package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The decoder's diagnostic output is line-oriented human-readable text,
// not a machine-readable contract. Parsing is anchored on three line
// shapes: the input-section header, the container duration line, and
// per-stream description lines.
type StreamKind int

const (
	VideoStream StreamKind = iota
	AudioStream
)

func (k StreamKind) String() string {
	if k == VideoStream {
		return "Video"
	}

	return "Audio"
}

// StreamDescriptor is one recognised stream line: its kind, the line
// verbatim, and the comma-separated descriptor fragments lower-cased
// for matching. Descriptors are immutable once created.
type StreamDescriptor struct {
	Kind    StreamKind
	RawLine string

	tokens map[string]struct{}
}

func newStreamDescriptor(kind StreamKind, rawLine string, payload string) StreamDescriptor {
	tokens := make(map[string]struct{})
	for _, fragment := range strings.Split(payload, ",") {
		token := strings.ToLower(strings.TrimSpace(fragment))
		if token != "" {
			tokens[token] = struct{}{}
		}
	}

	return StreamDescriptor{Kind: kind, RawLine: rawLine, tokens: tokens}
}

// HasToken reports whether the descriptor contains the exact token.
func (d *StreamDescriptor) HasToken(token string) bool {
	_, ok := d.tokens[strings.ToLower(token)]
	return ok
}

// HasTokenPrefix reports whether any token starts with the prefix.
func (d *StreamDescriptor) HasTokenPrefix(prefix string) bool {
	prefix = strings.ToLower(prefix)
	for token := range d.tokens {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}

	return false
}

// firstTokenMatch returns the submatches of the first token matching
// the pattern. Each stream contributes at most one resolution and one
// frame-rate token by construction of the diagnostic format, so the
// map's iteration order cannot affect the outcome.
func (d *StreamDescriptor) firstTokenMatch(pattern *regexp.Regexp) []string {
	for token := range d.tokens {
		if groups := pattern.FindStringSubmatch(token); groups != nil {
			return groups
		}
	}

	return nil
}

// ProbeOutput is the structured form of one inspect invocation's
// diagnostics. Absent duration is a valid outcome; so are empty
// stream lists (the classifier decides whether that is an error).
type ProbeOutput struct {
	Duration     *time.Duration
	VideoStreams []StreamDescriptor
	AudioStreams []StreamDescriptor
}

func (output *ProbeOutput) HasStreams() bool {
	return len(output.VideoStreams) > 0 || len(output.AudioStreams) > 0
}

var (
	durationPattern   = regexp.MustCompile(`(?i)^Duration\s*:\s*(\d+):(\d+):(\d+(?:\.\d*)?)\s*(?:,|$)`)
	streamPattern     = regexp.MustCompile(`(?i)^Stream\s*#\d+:\d+(?:\(\w+\))?(?:\[0x[0-9a-fA-F]+\])?\s*:\s*(Video|Audio)\s*:\s*(.*)$`)
	resolutionPattern = regexp.MustCompile(`^(\d+)x(\d+)(?:\s+\[.+\])?$`)
	frameRatePattern  = regexp.MustCompile(`^(\d+(?:\.\d*)?)\s+fps$`)
)

type lineKind int

const (
	lineOther lineKind = iota
	lineInputHeader
	lineDuration
	lineVideoStream
	lineAudioStream
)

// matchLine tags a single trimmed diagnostic line with its kind. The
// groups returned are the submatches of the pattern that fired, or
// nil for header/other lines.
func matchLine(line string) (lineKind, []string) {
	if strings.HasPrefix(line, "Input #") {
		return lineInputHeader, nil
	}

	if groups := durationPattern.FindStringSubmatch(line); groups != nil {
		return lineDuration, groups
	}

	if groups := streamPattern.FindStringSubmatch(line); groups != nil {
		if strings.EqualFold(groups[1], "Video") {
			return lineVideoStream, groups
		}

		return lineAudioStream, groups
	}

	return lineOther, nil
}

// Parse structures the captured diagnostic lines. Lines before the
// first "Input #0" marker are decoder banner text and ignored; a
// later "Input #" marker ends parsing, as the argument list only ever
// names a single input and a second section signals unexpected output.
// Parse never fails: structurally unrecognisable input simply yields
// an empty result.
func Parse(lines []string) *ProbeOutput {
	output := &ProbeOutput{
		VideoStreams: make([]StreamDescriptor, 0),
		AudioStreams: make([]StreamDescriptor, 0),
	}

	inInputSection := false
	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if !inInputSection {
			if strings.HasPrefix(line, "Input #0") {
				inInputSection = true
			}
			continue
		}

		kind, groups := matchLine(line)
		switch kind {
		case lineInputHeader:
			return output
		case lineDuration:
			if duration, ok := parseDuration(groups[1], groups[2], groups[3]); ok {
				output.Duration = &duration
			}
		case lineVideoStream:
			output.VideoStreams = append(output.VideoStreams, newStreamDescriptor(VideoStream, line, groups[2]))
		case lineAudioStream:
			output.AudioStreams = append(output.AudioStreams, newStreamDescriptor(AudioStream, line, groups[2]))
		}
	}

	return output
}

// parseDuration converts the h:mm:ss.frac components of a duration
// line. Unparsable values are reported as absent, never as an error.
func parseDuration(hours string, minutes string, seconds string) (time.Duration, bool) {
	h, hErr := strconv.Atoi(hours)
	m, mErr := strconv.Atoi(minutes)
	s, sErr := strconv.ParseFloat(seconds, 64)
	if hErr != nil || mErr != nil || sErr != nil {
		return 0, false
	}

	duration := time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s*float64(time.Second))

	return duration, true
}

// Resolution extracts the first WIDTHxHEIGHT token among the video
// streams; a bracketed suffix (sample aspect metadata) is ignored.
func (output *ProbeOutput) Resolution() (int, int, bool) {
	for i := range output.VideoStreams {
		if groups := output.VideoStreams[i].firstTokenMatch(resolutionPattern); groups != nil {
			width, wErr := strconv.Atoi(groups[1])
			height, hErr := strconv.Atoi(groups[2])
			if wErr == nil && hErr == nil {
				return width, height, true
			}
		}
	}

	return 0, 0, false
}

// FrameRate extracts the first '<number> fps' token among the video
// streams.
func (output *ProbeOutput) FrameRate() (float64, bool) {
	for i := range output.VideoStreams {
		if groups := output.VideoStreams[i].firstTokenMatch(frameRatePattern); groups != nil {
			if fps, err := strconv.ParseFloat(strings.TrimSuffix(groups[1], "."), 64); err == nil {
				return fps, true
			}
		}
	}

	return 0, false
}
