package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cluekeeper/cluekeeper/internal/game"
)

// Backend is the durable home of the full game map. The whole document is
// rewritten on every save; there is no incremental format.
type Backend interface {
	Load() (map[string]game.Record, error)
	Save(games map[string]game.Record) error
}

// FileBackend persists the game map as a single JSON document on disk.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the location of the JSON document, for change watchers.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Load() (map[string]game.Record, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]game.Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	games := make(map[string]game.Record)
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the target, so readers never observe a partial document.
func (f *FileBackend) Save(games map[string]game.Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	raw, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".games-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// MemoryBackend keeps the game map in process memory. It covers the
// topology where no shared file exists, and doubles as the test backend.
type MemoryBackend struct {
	games map[string]game.Record

	// FailWrites simulates a persistence failure when set.
	FailWrites bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{games: map[string]game.Record{}}
}

func (m *MemoryBackend) Load() (map[string]game.Record, error) {
	out := make(map[string]game.Record, len(m.games))
	for code, rec := range m.games {
		out[code] = rec
	}
	return out, nil
}

func (m *MemoryBackend) Save(games map[string]game.Record) error {
	if m.FailWrites {
		return errors.New("storage write refused")
	}
	out := make(map[string]game.Record, len(games))
	for code, rec := range games {
		out[code] = rec
	}
	m.games = out
	return nil
}
