package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mediabrowse/mediabrowse/internal/ingest"
	"github.com/mediabrowse/mediabrowse/internal/media"
	"github.com/mediabrowse/mediabrowse/pkg/logger"
)

func init() {
	logger.SetMinLoggingLevel(logger.VERBOSE.Level())
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Describe(_ context.Context, path string) (*media.Metadata, error) {
	args := m.Called(path)
	if v, ok := args.Get(0).(*media.Metadata); ok {
		return v, args.Error(1)
	}

	return nil, args.Error(1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveFile(file *media.File) error {
	args := m.Called(file)
	return args.Error(0)
}

func (m *mockStore) GetAllMediaSourcePaths() []string {
	args := m.Called()
	//nolint:forcetypeassert
	return args.Get(0).([]string)
}

// startService runs the service until the test completes, ensuring a
// clean shutdown before any mock assertions run.
func startService(t *testing.T, srv interface{ Run(context.Context) error }) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, srv.Run(ctx))
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func testConfig(ingestPath string, modtimeAge int) ingest.Config {
	return ingest.Config{
		ForceSyncSeconds:          100,
		IngestPath:                ingestPath,
		RequiredModTimeAgeSeconds: modtimeAge,
		IngestionParallelism:      1,
	}
}

func dummyMetadata(path string) *media.Metadata {
	return &media.Metadata{
		ID:          uuid.New(),
		ContentHash: "abc123",
		Location:    path,
		ContentType: "video/mp4",
		Kind:        media.VIDEO,
	}
}

func TestNew_CreatesMissingIngestDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watch", "nested")

	_, err := ingest.New(testConfig(path, 0), new(mockProber), new(mockStore))
	require.NoError(t, err)
	assert.DirExists(t, path)
}

func TestNew_RejectsFileAsIngestPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := ingest.New(testConfig(path, 0), new(mockProber), new(mockStore))
	assert.Error(t, err)
}

func TestRun_IngestsExistingFileOnStartup(t *testing.T) {
	tempDir := t.TempDir()
	mediaFile := filepath.Join(tempDir, "existing.mp4")
	require.NoError(t, os.WriteFile(mediaFile, []byte("pretend media"), 0o644))

	proberMock := new(mockProber)
	storeMock := new(mockStore)
	proberMock.On("Describe", mediaFile).Return(dummyMetadata(mediaFile), nil)
	storeMock.On("GetAllMediaSourcePaths").Return([]string{})
	storeMock.On("SaveFile", mock.Anything).Return(nil)

	srv, err := ingest.New(testConfig(tempDir, 0), proberMock, storeMock)
	require.NoError(t, err)
	startService(t, srv)

	assert.Eventually(t, func() bool {
		all := srv.GetAllIngests()
		return len(all) == 1 && all[0].State == ingest.COMPLETE
	}, time.Second*5, time.Millisecond*50)

	item := srv.GetAllIngests()[0]
	assert.Equal(t, mediaFile, item.Path)
	require.NotNil(t, item.Metadata)
	assert.Equal(t, "video/mp4", item.Metadata.ContentType)

	storeMock.AssertCalled(t, "SaveFile", mock.MatchedBy(func(file *media.File) bool {
		return file.Name == "existing.mp4" && file.ContentType == "video/mp4"
	}))
}

func TestRun_FreshFilesAreImportHeldUntilModtimeAges(t *testing.T) {
	tempDir := t.TempDir()
	mediaFile := filepath.Join(tempDir, "fresh.mp4")
	require.NoError(t, os.WriteFile(mediaFile, []byte("pretend media"), 0o644))

	proberMock := new(mockProber)
	storeMock := new(mockStore)
	proberMock.On("Describe", mediaFile).Return(nil, errors.New("TESTING NOOP"))
	storeMock.On("GetAllMediaSourcePaths").Return([]string{})

	srv, err := ingest.New(testConfig(tempDir, 2), proberMock, storeMock)
	require.NoError(t, err)
	startService(t, srv)

	// Shortly after startup the file must be held, not probed.
	assert.Eventually(t, func() bool {
		return len(srv.GetAllIngests()) == 1
	}, time.Second*2, time.Millisecond*50)
	assert.Equal(t, ingest.IMPORT_HOLD, srv.GetAllIngests()[0].State)

	// A forced re-sync must not duplicate the held item.
	srv.DiscoverNewFiles()
	assert.Len(t, srv.GetAllIngests(), 1)

	// Once the modtime threshold passes, the hold lifts and the probe
	// failure leaves the item troubled.
	assert.Eventually(t, func() bool {
		all := srv.GetAllIngests()
		return len(all) == 1 && all[0].State == ingest.TROUBLED
	}, time.Second*5, time.Millisecond*50)

	item := srv.GetAllIngests()[0]
	require.Error(t, item.Trouble)
	assert.Contains(t, item.Trouble.Error(), "TESTING NOOP")
}

func TestRun_SkipsKnownAndUnknownMarkedFiles(t *testing.T) {
	tempDir := t.TempDir()
	knownFile := filepath.Join(tempDir, "already-catalogued.mp4")
	markedFile := filepath.Join(tempDir, "rejected.mp4.unknown")
	require.NoError(t, os.WriteFile(knownFile, []byte("known"), 0o644))
	require.NoError(t, os.WriteFile(markedFile, []byte("marked"), 0o644))

	proberMock := new(mockProber)
	storeMock := new(mockStore)
	storeMock.On("GetAllMediaSourcePaths").Return([]string{knownFile})

	srv, err := ingest.New(testConfig(tempDir, 0), proberMock, storeMock)
	require.NoError(t, err)
	startService(t, srv)

	// Give discovery a chance to run, then confirm nothing was picked
	// up: the catalogued file and the unknown-marked file are ignored.
	time.Sleep(time.Millisecond * 500)
	assert.Empty(t, srv.GetAllIngests())
	proberMock.AssertNotCalled(t, "Describe", mock.Anything)
}

func TestRemoveIngest(t *testing.T) {
	tempDir := t.TempDir()
	mediaFile := filepath.Join(tempDir, "doomed.mp4")
	require.NoError(t, os.WriteFile(mediaFile, []byte("pretend media"), 0o644))

	proberMock := new(mockProber)
	storeMock := new(mockStore)
	proberMock.On("Describe", mediaFile).Return(nil, errors.New("TESTING NOOP"))
	storeMock.On("GetAllMediaSourcePaths").Return([]string{})

	srv, err := ingest.New(testConfig(tempDir, 0), proberMock, storeMock)
	require.NoError(t, err)
	startService(t, srv)

	assert.Eventually(t, func() bool {
		all := srv.GetAllIngests()
		return len(all) == 1 && all[0].State == ingest.TROUBLED
	}, time.Second*5, time.Millisecond*50)

	itemID := srv.GetAllIngests()[0].ID
	assert.NotNil(t, srv.GetIngest(itemID))
	require.NoError(t, srv.RemoveIngest(itemID))
	assert.Empty(t, srv.GetAllIngests())
	assert.Nil(t, srv.GetIngest(itemID))

	// Removing an unknown ID is a no-op.
	assert.NoError(t, srv.RemoveIngest(uuid.New()))
}
