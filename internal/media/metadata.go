package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileKind is the coarse classification of a media file, derived
// from the prefix of its MIME type.
type FileKind int

const (
	AUDIO FileKind = iota
	PHOTO
	VIDEO
)

func (k FileKind) String() string {
	switch k {
	case AUDIO:
		return fmt.Sprintf("AUDIO[%d]", k)
	case PHOTO:
		return fmt.Sprintf("PHOTO[%d]", k)
	case VIDEO:
		return fmt.Sprintf("VIDEO[%d]", k)
	}

	return fmt.Sprintf("UNKNOWN[%d]", k)
}

// KindFromMime derives the file kind from a MIME type. The boolean
// return is false when the MIME type matches none of the known
// prefixes.
func KindFromMime(mimeType string) (FileKind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "audio/"):
		return AUDIO, true
	case strings.HasPrefix(mimeType, "image/"):
		return PHOTO, true
	case strings.HasPrefix(mimeType, "video/"):
		return VIDEO, true
	}

	return 0, false
}

// Metadata is the authoritative description of a probed media file.
// Optional fields are nil when the decoder's diagnostics did not
// provide them (e.g. audio files carry no dimensions).
type Metadata struct {
	ID            uuid.UUID
	ContentHash   string
	Location      string
	ContentLength int64
	ContentType   string
	Kind          FileKind
	Width         *int
	Height        *int
	FrameRate     *float64
	DurationMs    *int64
	AudioStreams  []string
	VideoStreams  []string
	UploadedOn    time.Time
}

func (m *Metadata) String() string {
	return fmt.Sprintf("Metadata{ID=%s type=%s hash=%s}", m.ID, m.ContentType, m.ContentHash)
}

// Thumbnail describes a single extracted/uploaded thumbnail for a
// media file. Unlike Metadata, the dimensions are mandatory; a
// thumbnail is always an image.
type Thumbnail struct {
	ContentHash   string
	ContentType   string
	Width         int
	Height        int
	ContentLength int64
	Location      string
	CreatedOn     time.Time
}

// ThumbnailFromMetadata converts a probed metadata record into a
// thumbnail record. Missing dimensions are recorded as zero.
func ThumbnailFromMetadata(meta *Metadata) *Thumbnail {
	thumb := &Thumbnail{
		ContentHash:   meta.ContentHash,
		ContentType:   meta.ContentType,
		ContentLength: meta.ContentLength,
		Location:      meta.Location,
		CreatedOn:     meta.UploadedOn,
	}

	if meta.Width != nil {
		thumb.Width = *meta.Width
	}
	if meta.Height != nil {
		thumb.Height = *meta.Height
	}

	return thumb
}
