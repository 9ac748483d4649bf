package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ErrNotFound is returned by Get when the named artifact does not exist in
// the given space.
var ErrNotFound = errors.New("artifact not found")

// Store is a namespaced key/value layer over a shared filesystem. Each space
// is an isolated directory under the data root, created lazily on first
// access. The store is the only communication medium between the orchestrator
// and the client processes.
type Store struct {
	dataDir string
}

// Space is a handle to one actor's namespace inside the store.
type Space struct {
	store *Store
	name  string
}

func New(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

// DataDir returns the root directory all spaces live under.
func (s *Store) DataDir() string {
	return s.dataDir
}

// Space returns a handle to the named space, creating its directory if it
// does not exist yet.
func (s *Store) Space(name string) (*Space, error) {
	path := filepath.Join(s.dataDir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating space %s: %w", name, err)
	}

	return &Space{store: s, name: name}, nil
}

func (sp *Space) Name() string {
	return sp.name
}

// Path returns the absolute location of an artifact inside the space.
func (sp *Space) Path(artifactName string) string {
	return filepath.Join(sp.store.dataDir, sp.name, artifactName)
}

// Put durably writes an artifact. The write goes to a temporary file first
// and is renamed into place, so a concurrent Get or Exists never observes a
// half-written artifact.
func (sp *Space) Put(artifactName string, data []byte) error {
	target := sp.Path(artifactName)

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+artifactName+".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", sp.name, artifactName, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s/%s: %w", sp.name, artifactName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing %s/%s: %w", sp.name, artifactName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s/%s: %w", sp.name, artifactName, err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publishing %s/%s: %w", sp.name, artifactName, err)
	}

	return nil
}

// Get reads an artifact in full. Returns ErrNotFound when absent.
func (sp *Space) Get(artifactName string) ([]byte, error) {
	data, err := os.ReadFile(sp.Path(artifactName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", sp.name, artifactName, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s/%s: %w", sp.name, artifactName, err)
	}

	return data, nil
}

// Exists reports whether the artifact is present and fully written.
func (sp *Space) Exists(artifactName string) bool {
	info, err := os.Stat(sp.Path(artifactName))
	return err == nil && !info.IsDir()
}

// Delete removes an artifact. Deleting an absent artifact is a no-op.
func (sp *Space) Delete(artifactName string) error {
	err := os.Remove(sp.Path(artifactName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting %s/%s: %w", sp.name, artifactName, err)
	}

	return nil
}

// Move relocates an artifact into another space under a new name. The source
// copy no longer exists afterwards. Moving an absent artifact is a no-op so
// that collection stays idempotent.
func (sp *Space) Move(artifactName string, to *Space, newName string) error {
	if !sp.Exists(artifactName) {
		return nil
	}

	if err := os.Rename(sp.Path(artifactName), to.Path(newName)); err != nil {
		// Cross-device rename falls back to copy-then-delete; Put keeps the
		// destination visible only when fully written.
		data, readErr := sp.Get(artifactName)
		if readErr != nil {
			return fmt.Errorf("moving %s/%s: %w", sp.name, artifactName, err)
		}
		if putErr := to.Put(newName, data); putErr != nil {
			return putErr
		}
		return sp.Delete(artifactName)
	}

	return nil
}

// Copy duplicates an artifact into another space, leaving the source intact.
func (sp *Space) Copy(artifactName string, to *Space, newName string) error {
	data, err := sp.Get(artifactName)
	if err != nil {
		return err
	}

	return to.Put(newName, data)
}

// List returns the names of all artifacts currently in the space, sorted.
func (sp *Space) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(sp.store.dataDir, sp.name))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", sp.name, err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	return names, nil
}
