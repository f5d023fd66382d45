package scene

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
)

// DescriptionFile returns the file name of a scene description.
func DescriptionFile(name string) string { return name + ".json" }

// DumpFile returns the file name of a scene's render dump.
func DumpFile(name string) string { return name + ".dump" }

// SnapshotFile returns the file name used for periodic snapshot images.
func SnapshotFile(name string, spp int) string { return fmt.Sprintf("%s-%d.png", name, spp) }

// description is the on-disk layout of a scene description.
type description struct {
	Scene
	PathTrace bool `json:"pathTrace"`
}

// FileStore reads and writes scenes as a JSON description plus a binary dump
// in a scene directory.
type FileStore struct{}

// NewFileStore creates a file backed scene store
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Save writes the scene description and render dump to dir.
func (st *FileStore) Save(dir string, sc *Scene) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(description{Scene: *sc, PathTrace: sc.pathTrace}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptionFile(sc.Name)), data, 0644); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, DumpFile(sc.Name)))
	if err != nil {
		return err
	}
	if err := WriteDump(f, sc.Dump()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the named scene from dir. A missing dump is not an error; the
// scene then starts without accumulated samples. Loaded scenes start paused.
func (st *FileStore) Load(dir, name string) (*Scene, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptionFile(name)))
	if err != nil {
		return nil, err
	}

	var desc description
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSceneFormat, err)
	}
	if !ValidCanvasSize(desc.Width, desc.Height) {
		return nil, fmt.Errorf("%w: invalid canvas size %dx%d", ErrSceneFormat, desc.Width, desc.Height)
	}

	sc := &Scene{}
	if err := sc.Set(&desc.Scene); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		sc.Name = name
	}
	sc.pathTrace = desc.PathTrace
	sc.paused = true
	sc.ResetAccumulation()

	dump, err := st.LoadDump(filepath.Join(dir, DumpFile(name)))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := sc.RestoreDump(dump); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSceneFormat, err)
		}
	}
	return sc, nil
}

// LoadDump reads a render dump file.
func (st *FileStore) LoadDump(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDump(f)
}

// SaveSnapshot writes img as a PNG file.
func (st *FileStore) SaveSnapshot(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
