package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mediabrowse/mediabrowse/internal/media"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

type (
	IngestItemState int

	// IngestItem tracks one discovered file through its probing
	// lifecycle.
	IngestItem struct {
		ID       uuid.UUID
		Path     string
		State    IngestItemState
		Trouble  error
		Metadata *media.Metadata
	}
)

const (
	IDLE IngestItemState = iota
	IMPORT_HOLD
	INGESTING
	TROUBLED
	COMPLETE
)

// ingest is the main task for an ingest item: probe the file for its
// authoritative metadata and save the resulting record to the
// catalog. Errors are reported to the caller, which marks the item
// troubled rather than retrying.
func (item *IngestItem) ingest(ctx context.Context, prober Prober, store DataStore) error {
	log.Emit(logger.NEW, "Beginning ingestion of item %s\n", item)

	metadata, err := prober.Describe(ctx, item.Path)
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", item.Path, err)
	}
	item.Metadata = metadata

	file := &media.File{
		Metadata: *metadata,
		Name:     filepath.Base(item.Path),
	}
	if err := store.SaveFile(file); err != nil {
		return fmt.Errorf("failed to catalog %s: %w", item.Path, err)
	}

	log.Emit(logger.SUCCESS, "Cataloged newly ingested file %s\n", file)
	return nil
}

func (item *IngestItem) modtimeDiff() (*time.Duration, error) {
	itemInfo, err := os.Stat(item.Path)
	if err != nil {
		return nil, err
	}

	diff := time.Since(itemInfo.ModTime())
	return &diff, nil
}

func (item *IngestItem) String() string {
	return fmt.Sprintf("IngestItem{ID=%s state=%s}", item.ID, item.State)
}

func (s IngestItemState) String() string {
	switch s {
	case IDLE:
		return fmt.Sprintf("IDLE[%d]", s)
	case IMPORT_HOLD:
		return fmt.Sprintf("IMPORT_HOLD[%d]", s)
	case INGESTING:
		return fmt.Sprintf("INGESTING[%d]", s)
	case TROUBLED:
		return fmt.Sprintf("TROUBLED[%d]", s)
	case COMPLETE:
		return fmt.Sprintf("COMPLETE[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
