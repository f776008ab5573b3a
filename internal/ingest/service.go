package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rjeczalik/notify"

	"github.com/mediabrowse/mediabrowse/internal/media"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
	"github.com/mediabrowse/mediabrowse/pkg/worker"
)

var log = logger.Get("IngestServ")

type (
	Prober interface {
		Describe(ctx context.Context, path string) (*media.Metadata, error)
	}

	DataStore interface {
		SaveFile(file *media.File) error
		GetAllMediaSourcePaths() []string
	}

	// ingestService watches a directory for new media files and runs
	// them through the probing pipeline on a worker pool, saving the
	// resulting metadata to the catalog. Files still being written
	// are held until their modtime is old enough; files previously
	// marked '.unknown' are never picked up again.
	ingestService struct {
		*sync.Mutex
		prober Prober
		store  DataStore

		config           Config
		items            []*IngestItem
		importHoldTimers map[uuid.UUID]*time.Timer
		workerPool       *worker.WorkerPool

		runCtx context.Context
	}
)

// New creates the ingest service. The configured ingest path is
// validated to be an existing directory; a missing directory is
// created, a file at that path is an error.
func New(config Config, prober Prober, store DataStore) (*ingestService, error) {
	if info, err := os.Stat(config.IngestPath); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("ingestion path '%s' is not a directory", config.IngestPath)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(config.IngestPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("ingestion path '%s' could not be created: %w", config.IngestPath, mkErr)
		}
	} else {
		return nil, fmt.Errorf("ingestion path '%s' could not be accessed: %w", config.IngestPath, err)
	}

	service := &ingestService{
		Mutex:            &sync.Mutex{},
		prober:           prober,
		store:            store,
		config:           config,
		items:            make([]*IngestItem, 0),
		importHoldTimers: make(map[uuid.UUID]*time.Timer),
		workerPool:       worker.NewWorkerPool(),
	}

	parallelism := config.IngestionParallelism
	if parallelism < 1 {
		parallelism = 1
	}
	for i := 0; i < parallelism; i++ {
		label := fmt.Sprintf("ingest-worker-%d", i)
		service.workerPool.PushWorker(worker.NewWorker(label, service.PerformItemIngest))
	}

	return service, nil
}

// Run is the main entry point of this service. It listens to file
// system change events and additionally polls on a fixed interval in
// case the watcher fails. The method blocks until the provided
// context is cancelled.
func (service *ingestService) Run(ctx context.Context) error {
	service.runCtx = ctx

	fsNotifyChannel := make(chan notify.EventInfo, 128)
	watchPath := filepath.Join(service.config.IngestPath, "...")
	if err := notify.Watch(watchPath, fsNotifyChannel, notify.Create, notify.Write, notify.Rename); err != nil {
		return fmt.Errorf("failed to watch ingest directory '%s': %w", service.config.IngestPath, err)
	}
	defer notify.Stop(fsNotifyChannel)

	forceSyncTicker := time.NewTicker(time.Second * time.Duration(service.config.ForceSyncSeconds))
	defer forceSyncTicker.Stop()

	defer service.clearAllImportHoldTimers()

	if err := service.workerPool.Start(); err != nil {
		return err
	}
	defer service.workerPool.Close()

	service.DiscoverNewFiles()

	for {
		select {
		case <-fsNotifyChannel:
			service.DiscoverNewFiles()
		case <-forceSyncTicker.C:
			service.DiscoverNewFiles()
		case <-ctx.Done():
			log.Emit(logger.STOP, "Shutting down (context cancelled)\n")
			return nil
		}
	}
}

// PerformItemIngest is the worker task for this service: it claims
// the first IDLE item and probes it. A probing failure marks the item
// troubled; the error itself is retained on the item for inspection.
func (service *ingestService) PerformItemIngest(w worker.Worker) (bool, error) {
	item := service.claimIdleItem()
	if item == nil {
		return false, nil
	}

	if err := item.ingest(service.runCtx, service.prober, service.store); err != nil {
		log.Errorf("Ingestion of item %s failed: %v\n", item, err)
		item.Trouble = err
		item.State = TROUBLED
		return true, nil
	}

	item.State = COMPLETE
	return true, nil
}

// DiscoverNewFiles scans the ingest directory for files that are not
// already catalogued and not already tracked by this service. Fresh
// files go on import hold until their modtime threshold passes.
//
// Note: this method takes ownership of the mutex and releases it when
// returning.
func (service *ingestService) DiscoverNewFiles() {
	service.Lock()
	defer service.Unlock()

	knownPaths := make(map[string]bool)
	for _, path := range service.store.GetAllMediaSourcePaths() {
		knownPaths[path] = true
	}
	for _, item := range service.items {
		knownPaths[item.Path] = true
	}

	foundItems, err := recursivelyWalkFileSystem(service.config.IngestPath, knownPaths)
	if err != nil {
		log.Errorf("File system polling failed: %v\n", err)
		return
	}

	minModtimeAge := service.config.RequiredModTimeAgeDuration()
	dirty := false
	for itemPath, itemInfo := range foundItems {
		itemID := uuid.New()
		timeSinceWrite := time.Since(itemInfo.ModTime())

		itemState := IMPORT_HOLD
		if timeSinceWrite >= minModtimeAge {
			dirty = true
			itemState = IDLE
		}

		service.items = append(service.items, &IngestItem{
			ID:    itemID,
			Path:  itemPath,
			State: itemState,
		})
		if itemState == IMPORT_HOLD {
			service.scheduleImportHoldTimer(itemID, minModtimeAge-timeSinceWrite)
		}
	}

	if dirty {
		service.workerPool.WakeupWorkers()
	}
}

// RemoveIngest drops the item with the given ID from the service.
// Items currently being probed cannot be removed, as interrupting the
// ingestion is not possible. An unknown ID is not an error.
//
// Note: this method takes ownership of the mutex and releases it when
// returning.
func (service *ingestService) RemoveIngest(itemID uuid.UUID) error {
	service.Lock()
	defer service.Unlock()

	return service.removeIngest(itemID)
}

func (service *ingestService) removeIngest(itemID uuid.UUID) error {
	for k, v := range service.items {
		if v.ID == itemID {
			if v.State == INGESTING {
				return fmt.Errorf("cannot remove item %v as a worker is currently ingesting it", itemID)
			}

			service.clearImportHoldTimer(itemID)
			service.items = append(service.items[:k], service.items[k+1:]...)
			return nil
		}
	}

	return nil
}

// GetIngest finds the item with the given ID, or nil.
func (service *ingestService) GetIngest(itemID uuid.UUID) *IngestItem {
	for _, item := range service.items {
		if item.ID == itemID {
			return item
		}
	}

	return nil
}

func (service *ingestService) GetAllIngests() []*IngestItem {
	return service.items
}

// evaluateItemHold re-checks an IMPORT_HOLD item's modtime. The item
// becomes IDLE once the threshold has passed; an item whose source
// file has gone away is removed; otherwise a fresh timer is
// scheduled.
//
// Note: this method takes ownership of the mutex and releases it when
// returning.
func (service *ingestService) evaluateItemHold(id uuid.UUID) {
	service.Lock()
	defer service.Unlock()

	item := service.GetIngest(id)
	if item == nil || item.State != IMPORT_HOLD {
		return
	}

	timeSinceWrite, err := item.modtimeDiff()
	if err != nil {
		// Item's source file has gone away
		service.removeIngest(id)
		return
	}

	threshold := service.config.RequiredModTimeAgeDuration()
	if *timeSinceWrite < threshold {
		service.scheduleImportHoldTimer(id, threshold-*timeSinceWrite)
		return
	}

	item.State = IDLE
	service.workerPool.WakeupWorkers()
}

func (service *ingestService) scheduleImportHoldTimer(id uuid.UUID, delay time.Duration) {
	service.clearImportHoldTimer(id)
	service.importHoldTimers[id] = time.AfterFunc(delay, func() {
		service.evaluateItemHold(id)
	})
}

func (service *ingestService) clearImportHoldTimer(id uuid.UUID) {
	if timer, ok := service.importHoldTimers[id]; ok {
		timer.Stop()
		delete(service.importHoldTimers, id)
	}
}

func (service *ingestService) clearAllImportHoldTimers() {
	for key, timer := range service.importHoldTimers {
		timer.Stop()
		delete(service.importHoldTimers, key)
	}
}

// claimIdleItem finds an IDLE item and moves it to INGESTING so no
// other worker claims it once the mutex is released.
//
// Note: this method takes ownership of the mutex and releases it when
// returning.
func (service *ingestService) claimIdleItem() *IngestItem {
	service.Lock()
	defer service.Unlock()

	for _, item := range service.items {
		if item.State == IDLE {
			item.State = INGESTING
			return item
		}
	}

	return nil
}

// recursivelyWalkFileSystem walks the directory tree rooted at
// rootDirPath and returns the files not present in the 'known' set.
// Files previously marked unreadable by the prober (the '.unknown'
// suffix) are skipped.
func recursivelyWalkFileSystem(rootDirPath string, known map[string]bool) (map[string]fs.FileInfo, error) {
	foundItems := make(map[string]fs.FileInfo)
	err := filepath.WalkDir(rootDirPath, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if dir.IsDir() || strings.HasSuffix(path, ".unknown") {
			return nil
		}

		fileInfo, err := dir.Info()
		if err != nil {
			return err
		}

		if _, ok := known[path]; !ok {
			foundItems[path] = fileInfo
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk file system: %w", err)
	}

	return foundItems, nil
}
