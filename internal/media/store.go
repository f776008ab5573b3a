package media

import (
	"errors"

	"github.com/google/uuid"
	"github.com/samber/lo"

	gosync "github.com/mediabrowse/mediabrowse/pkg/sync"
)

var ErrMediaNotFound = errors.New("no media could be found")

// File is a catalogued media file: the probed metadata plus any
// thumbnails attached to it.
type File struct {
	Metadata
	Name        string
	Description string
	Thumbnails  []*Thumbnail
}

// Store is an in-memory catalog of media files. Persistence formats
// are out of scope for this engine, so the catalog lives behind narrow
// interfaces declared by its consumers; this implementation exists so
// the server can run standalone.
type Store struct {
	files gosync.TypedSyncMap[uuid.UUID, *File]
}

func NewStore() *Store {
	return &Store{}
}

func (store *Store) SaveFile(file *File) error {
	if file == nil {
		return errors.New("cannot save nil file")
	}

	store.files.Store(file.ID, file)
	return nil
}

func (store *Store) GetFile(id uuid.UUID) (*File, error) {
	if file, ok := store.files.Load(id); ok {
		return file, nil
	}

	return nil, ErrMediaNotFound
}

func (store *Store) DeleteFile(id uuid.UUID) {
	store.files.Delete(id)
}

func (store *Store) AllFiles() []*File {
	files := make([]*File, 0)
	store.files.Range(func(_ uuid.UUID, file *File) bool {
		files = append(files, file)
		return true
	})

	return files
}

// GetAllMediaSourcePaths returns the on-disk locations of every
// catalogued file, including thumbnail artifacts. The ingest service
// uses this to avoid re-probing files it has already seen.
func (store *Store) GetAllMediaSourcePaths() []string {
	paths := make([]string, 0)
	store.files.Range(func(_ uuid.UUID, file *File) bool {
		paths = append(paths, file.Location)
		paths = append(paths, lo.Map(file.Thumbnails, func(thumb *Thumbnail, _ int) string {
			return thumb.Location
		})...)

		return true
	})

	return paths
}
