package audiocache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry describes stored audio. Entries are immutable once written.
type Entry struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound    = errors.New("audiocache: entry not found")
	ErrInvalidName = errors.New("audiocache: invalid entry name")
	ErrEmptyAudio  = errors.New("audiocache: generator returned no audio")
)

// Store persists generated audio by key.
type Store interface {
	Get(ctx context.Context, key, format string) (Entry, bool, error)
	Put(ctx context.Context, key, format string, data []byte) (Entry, error)
	// Open streams an entry by its file name.
	Open(ctx context.Context, name string) (io.ReadCloser, Entry, error)
}

// FileStore keeps audio as <dir>/<key>.<format>.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("audiocache: empty cache dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiocache: create cache dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Get(_ context.Context, key, format string) (Entry, bool, error) {
	name := FileName(key, format)
	fi, err := os.Stat(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("audiocache: stat %s: %w", name, err)
	}
	return Entry{Key: key, Name: name, Format: normalizeFormat(format), Size: fi.Size(), CreatedAt: fi.ModTime()}, true, nil
}

// Put writes to a temp file then renames it, so readers never see partial audio.
func (s *FileStore) Put(_ context.Context, key, format string, data []byte) (Entry, error) {
	name := FileName(key, format)
	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return Entry{}, fmt.Errorf("audiocache: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return Entry{}, fmt.Errorf("audiocache: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Entry{}, fmt.Errorf("audiocache: close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmpName)
		return Entry{}, fmt.Errorf("audiocache: rename %s: %w", name, err)
	}
	return Entry{Key: key, Name: name, Format: normalizeFormat(format), Size: int64(len(data)), CreatedAt: time.Now().UTC()}, nil
}

func (s *FileStore) Open(_ context.Context, name string) (io.ReadCloser, Entry, error) {
	if !ValidName(name) {
		return nil, Entry{}, ErrInvalidName
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Entry{}, ErrNotFound
	}
	if err != nil {
		return nil, Entry{}, fmt.Errorf("audiocache: open %s: %w", name, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Entry{}, fmt.Errorf("audiocache: stat %s: %w", name, err)
	}
	key, format, _ := strings.Cut(name, ".")
	return f, Entry{Key: key, Name: name, Format: format, Size: fi.Size(), CreatedAt: fi.ModTime()}, nil
}
