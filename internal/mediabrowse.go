package internal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediabrowse/mediabrowse/internal/ffmpeg"
	"github.com/mediabrowse/mediabrowse/internal/ingest"
	"github.com/mediabrowse/mediabrowse/internal/media"
	"github.com/mediabrowse/mediabrowse/internal/upload"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	// ProbeService covers the decoder-backed operations the rest of
	// the application depends on.
	ProbeService interface {
		Describe(ctx context.Context, path string) (*media.Metadata, error)
		GenerateThumbnail(ctx context.Context, path string, offset time.Duration, outputPath string) (*media.Metadata, error)
		Running() []ffmpeg.ProcessHandle
		Shutdown()
	}

	IngestService interface {
		RunnableService
		RemoveIngest(uuid.UUID) error
		GetIngest(uuid.UUID) *ingest.IngestItem
		GetAllIngests() []*ingest.IngestItem
		DiscoverNewFiles()
	}
)

// mediaBrowse is the top-level object for the server, responsible for
// constructing the catalog store, the probing service and the services
// built on top of them, and for supervising their lifecycles.
type mediaBrowse struct {
	config MediaBrowseConfig

	mediaStore *media.Store

	probeService    ProbeService
	uploadProcessor *upload.Processor
	ingestService   IngestService
}

func New(config MediaBrowseConfig) (*mediaBrowse, error) {
	log.Emit(logger.DEBUG, "Bootstrapping MediaBrowse services using config: %#v\n", config)
	browse := &mediaBrowse{
		config:     config,
		mediaStore: media.NewStore(),
	}

	probeService, err := ffmpeg.NewService(ffmpeg.Config{FfmpegBinPath: config.Disk.FfmpegBinPath}, media.MD5Hasher{})
	if err != nil {
		return nil, fmt.Errorf("failed to construct probing service: %w", err)
	}
	browse.probeService = probeService

	uploadProcessor, err := upload.New(upload.Config{
		MediaDirPath: config.Disk.MediaDirPath,
		TempDirPath:  config.Disk.TempDirPath,
	}, probeService, browse.mediaStore)
	if err != nil {
		return nil, fmt.Errorf("failed to construct upload processor: %w", err)
	}
	browse.uploadProcessor = uploadProcessor

	ingestService, err := ingest.New(config.IngestService, probeService, browse.mediaStore)
	if err != nil {
		return nil, fmt.Errorf("failed to construct ingestion service: %w", err)
	}
	browse.ingestService = ingestService

	return browse, nil
}

// Run brings up all long-running services and blocks until the
// provided context is cancelled or a service crashes. In-flight
// decoder invocations are terminated on the way out.
func (browse *mediaBrowse) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	defer browse.probeService.Shutdown()

	wg := &sync.WaitGroup{}
	browse.spawnAsyncService(ctx, wg, browse.ingestService, "ingest-service", crashHandler)
	log.Emit(logger.SUCCESS, "MediaBrowse services spawned!\n")

	wg.Wait()
	return nil
}

func (browse *mediaBrowse) Store() *media.Store        { return browse.mediaStore }
func (browse *mediaBrowse) Probe() ProbeService        { return browse.probeService }
func (browse *mediaBrowse) Uploads() *upload.Processor { return browse.uploadProcessor }
func (browse *mediaBrowse) Ingests() IngestService     { return browse.ingestService }

// spawnAsyncService will run the provided service as its own
// go-routine, ensuring the service waitgroup is updated correctly.
func (browse *mediaBrowse) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
