package mockup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrNotFound is returned when a mockup id has no file on disk.
var ErrNotFound = errors.New("mockup: not found")

// Template is one device-case background image onto which user artwork is
// composited. The numeric id doubles as the on-disk filename.
type Template struct {
	ID    int    `json:"id"`
	Path  string `json:"path"`  // server-relative URL
	Model string `json:"model"` // free-text device-model label
}

// modelSidecar is the filename of the id → model-label map kept next to the
// mockup files. Overwritten wholesale on every change.
const modelSidecar = "models.json"

// urlPrefix is where the data directory is mounted on the HTTP server.
const urlPrefix = "/files/mockups/"

var imageExts = []string{".png", ".jpg", ".jpeg", ".webp"}

// Catalog is the disk-backed mockup template library. Files are named by
// their numeric id ({id}.png); the model label lives in a JSON sidecar.
type Catalog struct {
	dir string

	mu     sync.RWMutex
	models map[int]string
}

// OpenCatalog opens (creating if needed) the mockup directory and loads the
// model sidecar. A missing or corrupt sidecar yields empty labels, not an
// error.
func OpenCatalog(dir string) (*Catalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("mockup: create dir %s: %w", dir, err)
	}
	c := &Catalog{dir: dir, models: make(map[int]string)}
	if data, err := os.ReadFile(filepath.Join(dir, modelSidecar)); err == nil {
		var raw map[string]string
		if json.Unmarshal(data, &raw) == nil {
			for k, v := range raw {
				if id, err := strconv.Atoi(k); err == nil {
					c.models[id] = v
				}
			}
		}
	}
	return c, nil
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string { return c.dir }

// List scans the directory for numeric-stemmed image files and returns the
// templates ordered by id. Files that vanished simply do not appear.
func (c *Catalog) List() ([]Template, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("mockup: read dir %s: %w", c.dir, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Template
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !isImageExt(ext) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		out = append(out, Template{
			ID:    id,
			Path:  urlPrefix + name,
			Model: c.models[id],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns the template for one id.
func (c *Catalog) Get(id int) (Template, error) {
	file, err := c.FilePath(id)
	if err != nil {
		return Template{}, err
	}
	c.mu.RLock()
	model := c.models[id]
	c.mu.RUnlock()
	return Template{ID: id, Path: urlPrefix + filepath.Base(file), Model: model}, nil
}

// FilePath resolves a mockup id to its file on disk.
func (c *Catalog) FilePath(id int) (string, error) {
	for _, ext := range imageExts {
		path := filepath.Join(c.dir, strconv.Itoa(id)+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("mockup: id %d: %w", id, ErrNotFound)
}

// Add stores a new mockup file under the given id and records its model
// label. An existing file for the id is replaced.
func (c *Catalog) Add(id int, ext string, r io.Reader, model string) (Template, error) {
	ext = strings.ToLower(ext)
	if !isImageExt(ext) {
		return Template{}, fmt.Errorf("mockup: unsupported extension %q", ext)
	}
	name := strconv.Itoa(id) + ext
	f, err := os.Create(filepath.Join(c.dir, name))
	if err != nil {
		return Template{}, fmt.Errorf("mockup: create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return Template{}, fmt.Errorf("mockup: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return Template{}, fmt.Errorf("mockup: close %s: %w", name, err)
	}

	c.mu.Lock()
	c.models[id] = model
	err = c.saveSidecarLocked()
	c.mu.Unlock()
	if err != nil {
		return Template{}, err
	}
	return Template{ID: id, Path: urlPrefix + name, Model: model}, nil
}

// SetModel updates the model label of an existing mockup.
func (c *Catalog) SetModel(id int, model string) error {
	if _, err := c.FilePath(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models[id] = model
	return c.saveSidecarLocked()
}

// Delete removes the mockup file and its model label.
func (c *Catalog) Delete(id int) error {
	path, err := c.FilePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("mockup: remove %s: %w", path, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.models, id)
	return c.saveSidecarLocked()
}

// NextID returns one past the highest id in the catalog, starting at 1.
func (c *Catalog) NextID() (int, error) {
	list, err := c.List()
	if err != nil {
		return 0, err
	}
	next := 1
	for _, t := range list {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next, nil
}

func (c *Catalog) saveSidecarLocked() error {
	raw := make(map[string]string, len(c.models))
	for id, model := range c.models {
		raw[strconv.Itoa(id)] = model
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("mockup: marshal sidecar: %w", err)
	}
	path := filepath.Join(c.dir, modelSidecar)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("mockup: write sidecar: %w", err)
	}
	return nil
}

func isImageExt(ext string) bool {
	for _, e := range imageExts {
		if ext == e {
			return true
		}
	}
	return false
}
