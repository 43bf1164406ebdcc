// Package store persists editor state as plain files under a single data
// root: per-mockup element collections as JSON, uploaded user images under
// random names, and the calibration profile as one well-known JSON blob.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"caseforge/internal/element"
	"caseforge/internal/imaging"
)

// ErrNotFound is returned when no collection was saved for a mockup id.
var ErrNotFound = errors.New("store: not found")

const (
	mockupsDirName  = "mockups"
	elementsDirName = "elements"
	uploadsDirName  = "uploads"
	calibrationFile = "calibration.json"

	uploadsURLPrefix = "/files/uploads/"
)

var uploadExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".tga": true,
}

// Disk is the file-backed storage collaborator.
type Disk struct {
	root string
}

// Open prepares the data root, creating the mockup, element and upload
// directories when missing.
func Open(root string) (*Disk, error) {
	for _, dir := range []string{mockupsDirName, elementsDirName, uploadsDirName} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("store: create %s dir: %w", dir, err)
		}
	}
	return &Disk{root: root}, nil
}

// MockupsDir is where the mockup catalog keeps template images.
func (d *Disk) MockupsDir() string { return filepath.Join(d.root, mockupsDirName) }

// UploadsDir is where uploaded user images land; served under /files/uploads/.
func (d *Disk) UploadsDir() string { return filepath.Join(d.root, uploadsDirName) }

// CalibrationPath is the single well-known calibration blob location.
func (d *Disk) CalibrationPath() string { return filepath.Join(d.root, calibrationFile) }

func (d *Disk) elementsPath(mockupID int) string {
	return filepath.Join(d.root, elementsDirName, strconv.Itoa(mockupID)+".json")
}

var _ element.Persistence = (*Disk)(nil)

// SaveElements overwrites the collection saved for a mockup id. The write
// goes through a temp file so a crash cannot leave a half-written blob.
func (d *Disk) SaveElements(_ context.Context, mockupID int, c element.Collection) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode elements for mockup %d: %w", mockupID, err)
	}
	path := d.elementsPath(mockupID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("store: write elements for mockup %d: %w", mockupID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: commit elements for mockup %d: %w", mockupID, err)
	}
	return nil
}

// LoadElements reads the collection saved for a mockup id. A missing file is
// ErrNotFound; a corrupt one is a hard error so callers can tell the two
// apart.
func (d *Disk) LoadElements(_ context.Context, mockupID int) (element.Collection, error) {
	data, err := os.ReadFile(d.elementsPath(mockupID))
	if errors.Is(err, os.ErrNotExist) {
		return element.Collection{}, fmt.Errorf("store: elements for mockup %d: %w", mockupID, ErrNotFound)
	}
	if err != nil {
		return element.Collection{}, fmt.Errorf("store: read elements for mockup %d: %w", mockupID, err)
	}
	var c element.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return element.Collection{}, fmt.Errorf("store: decode elements for mockup %d: %w", mockupID, err)
	}
	return c, nil
}

// DeleteElements removes the saved collection for a mockup id. Deleting a
// collection that was never saved is not an error.
func (d *Disk) DeleteElements(_ context.Context, mockupID int) error {
	err := os.Remove(d.elementsPath(mockupID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: delete elements for mockup %d: %w", mockupID, err)
	}
	return nil
}

// SavedElementIDs lists the mockup ids that have a persisted collection.
func (d *Disk) SavedElementIDs() ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, elementsDirName))
	if err != nil {
		return nil, fmt.Errorf("store: list elements: %w", err)
	}
	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem, ok := strings.CutSuffix(e.Name(), ".json")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(stem)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SaveUserImage stores an uploaded image under a random name and returns the
// URL path it will be served at. The extension decides the name suffix and
// must be one of the decodable formats.
func (d *Disk) SaveUserImage(r io.Reader, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !uploadExts[ext] {
		return "", fmt.Errorf("store: unsupported image extension %q", ext)
	}
	name := uuid.NewString() + ext
	f, err := os.Create(filepath.Join(d.UploadsDir(), name))
	if err != nil {
		return "", fmt.Errorf("store: create upload: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("store: write upload %s: %w", name, err)
	}
	return uploadsURLPrefix + name, nil
}

// UploadFilePath maps a /files/uploads/ URL path back to the file on disk.
// Paths outside the uploads directory are rejected.
func (d *Disk) UploadFilePath(urlPath string) (string, error) {
	name, ok := strings.CutPrefix(urlPath, uploadsURLPrefix)
	if !ok || name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("store: invalid upload path %q", urlPath)
	}
	return filepath.Join(d.UploadsDir(), name), nil
}

// FilesRoot is the directory served under /files/.
func (d *Disk) FilesRoot() string { return d.root }

// ResolveSource maps a served /files/ URL path to its file under the data
// root. Uploads take the strict mapping, which rejects path segments; other
// /files/ paths fall back to a clean-and-join. Sources that are not /files/
// URLs (data URIs, absolute paths) pass through unchanged.
func (d *Disk) ResolveSource(source string) string {
	if p, err := d.UploadFilePath(source); err == nil {
		return p
	}
	rest, ok := strings.CutPrefix(source, "/files/")
	if !ok {
		return source
	}
	rest = path.Clean("/" + rest) // forces any ".." to resolve inside the root
	return filepath.Join(d.root, filepath.FromSlash(rest))
}

// SourceLoader adapts a Disk plus an image loader into the loader the
// compositor uses: element sources recorded as /files/ URLs resolve to their
// on-disk files before loading.
type SourceLoader struct {
	disk *Disk
	next imaging.Loader
}

// Loader wraps next with this store's source resolution.
func (d *Disk) Loader(next imaging.Loader) *SourceLoader {
	return &SourceLoader{disk: d, next: next}
}

func (l *SourceLoader) Load(source string) (*image.NRGBA, error) {
	return l.next.Load(l.disk.ResolveSource(source))
}
