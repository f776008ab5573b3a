package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/mediabrowse/mediabrowse/internal/media"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

var log = logger.Get("Upload")

var (
	ErrMissingMediaFile  = errors.New("upload contains no media file part")
	ErrTooManyMediaFiles = errors.New("upload contains more than one media file part")
	ErrInvalidThumbnail  = errors.New("thumbnail part is not a supported photo format")
	ErrInvalidMediaFile  = errors.New("media file part is not a supported media format")
)

// fileExtensions maps every MIME type the classifier can emit to the
// extension used when placing the file in the media directory. A type
// outside this table is rejected, not guessed.
var fileExtensions = map[string]string{
	"audio/mp3":       "mp3",
	"audio/ogg":       "oga",
	"audio/wav":       "wav",
	"image/jpeg":      "jpg",
	"image/gif":       "gif",
	"image/png":       "png",
	"image/bmp":       "bmp",
	"image/tiff":      "tif",
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/mpeg":      "mpeg",
	"video/divx":      "avi",
	"video/x-flv":     "flv",
	"video/x-msvideo": "avi",
	"video/x-ms-wmv":  "wmv",
}

type (
	// FormFile is one part of a multipart upload. Source is consumed
	// exactly once, when the part is staged to the scratch directory.
	FormFile struct {
		Name        string
		FileName    string
		ContentType string
		Length      int64
		IsThumbnail bool
		Source      io.Reader
	}

	Request struct {
		Name        string
		Description string
	}

	// Prober yields authoritative metadata for a staged file; the
	// declared ContentType of the part is never trusted.
	Prober interface {
		Describe(ctx context.Context, path string) (*media.Metadata, error)
	}

	DataStore interface {
		SaveFile(file *media.File) error
	}

	Config struct {
		// MediaDirPath is the final home of accepted files.
		MediaDirPath string

		// TempDirPath is the scratch directory parts are staged into
		// before probing.
		TempDirPath string
	}

	// Processor stages uploaded parts, probes them, validates the
	// result and places accepted files into the media directory under
	// content-derived names. Every staged or placed file is removed
	// again if processing fails at any point.
	Processor struct {
		config Config
		prober Prober
		store  DataStore
	}
)

func New(config Config, prober Prober, store DataStore) (*Processor, error) {
	for _, dir := range []string{config.MediaDirPath, config.TempDirPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("upload directory '%s' could not be created: %w", dir, err)
		}
	}

	return &Processor{config: config, prober: prober, store: store}, nil
}

// Process handles one upload request: exactly one non-thumbnail part
// plus any number of thumbnail parts. The media part is placed at
// '<mediaDir>/<id>.<ext>' and each thumbnail at
// '<mediaDir>/<id>.<hash>.<ext>', then the assembled file record is
// handed to the catalog store.
func (processor *Processor) Process(ctx context.Context, request Request, files []FormFile) (file *media.File, err error) {
	mediaParts := lo.CountBy(files, func(f FormFile) bool { return !f.IsThumbnail })
	if mediaParts == 0 {
		return nil, ErrMissingMediaFile
	}
	if mediaParts > 1 {
		return nil, ErrTooManyMediaFiles
	}

	placedLocations := make([]string, 0, len(files)+1)
	defer func() {
		if err == nil {
			return
		}

		for _, location := range placedLocations {
			if removeErr := os.Remove(location); removeErr == nil {
				log.Debugf("Cleaned up %s after failed upload\n", location)
			}
		}
	}()

	now := time.Now().UTC()
	var mediaInfo *media.Metadata
	thumbnailInfo := make([]*media.Metadata, 0)

	for i := range files {
		part := &files[i]

		staged := filepath.Join(processor.config.TempDirPath, uuid.NewString())
		placedLocations = append(placedLocations, staged)
		if stageErr := stagePart(part, staged); stageErr != nil {
			return nil, stageErr
		}

		info, probeErr := processor.prober.Describe(ctx, staged)
		if probeErr != nil {
			return nil, fmt.Errorf("failed to probe uploaded part '%s': %w", part.FileName, probeErr)
		}
		info.UploadedOn = now

		// Cross-check the probed type against a content sniff of the
		// staged bytes. A mismatch is suspicious but not fatal; the
		// probe is authoritative.
		if detected, sniffErr := mimetype.DetectFile(staged); sniffErr == nil && !detected.Is(info.ContentType) {
			log.Warnf("Content sniff of part '%s' reported %s but probe classified %s\n",
				part.FileName, detected.String(), info.ContentType)
		}

		if part.IsThumbnail {
			if _, known := fileExtensions[info.ContentType]; info.Kind != media.PHOTO || !known {
				return nil, fmt.Errorf("part '%s' (%s): %w", part.FileName, info.ContentType, ErrInvalidThumbnail)
			}

			thumbnailInfo = append(thumbnailInfo, info)
			continue
		}

		if _, known := fileExtensions[info.ContentType]; !known {
			return nil, fmt.Errorf("part '%s' (%s): %w", part.FileName, info.ContentType, ErrInvalidMediaFile)
		}
		mediaInfo = info
	}

	location := filepath.Join(processor.config.MediaDirPath,
		fmt.Sprintf("%s.%s", mediaInfo.ID, fileExtensions[mediaInfo.ContentType]))
	placedLocations = append(placedLocations, location)
	if moveErr := os.Rename(mediaInfo.Location, location); moveErr != nil {
		return nil, fmt.Errorf("failed to place media file: %w", moveErr)
	}
	mediaInfo.Location = location

	thumbnails := make([]*media.Thumbnail, 0, len(thumbnailInfo))
	for _, info := range thumbnailInfo {
		location := filepath.Join(processor.config.MediaDirPath,
			fmt.Sprintf("%s.%s.%s", mediaInfo.ID, info.ContentHash, fileExtensions[info.ContentType]))
		placedLocations = append(placedLocations, location)
		if moveErr := os.Rename(info.Location, location); moveErr != nil {
			return nil, fmt.Errorf("failed to place thumbnail: %w", moveErr)
		}
		info.Location = location

		thumbnails = append(thumbnails, media.ThumbnailFromMetadata(info))
	}

	file = &media.File{
		Metadata:    *mediaInfo,
		Name:        request.Name,
		Description: request.Description,
		Thumbnails:  thumbnails,
	}
	if saveErr := processor.store.SaveFile(file); saveErr != nil {
		return nil, fmt.Errorf("failed to save uploaded file: %w", saveErr)
	}

	log.Emit(logger.NEW, "Accepted upload %s with %d thumbnail(s)\n", file, len(thumbnails))
	return file, nil
}

func stagePart(part *FormFile, destination string) error {
	target, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to stage uploaded part '%s': %w", part.FileName, err)
	}
	defer target.Close()

	if _, err := io.Copy(target, part.Source); err != nil {
		return fmt.Errorf("failed to stage uploaded part '%s': %w", part.FileName, err)
	}

	return nil
}
