package calibration

import (
	"encoding/json"
	"fmt"
	"os"
)

// Profile holds export-time correction factors. The preview is a CSS-scaled
// DOM element whose on-screen size differs from the raster export canvas, and
// a plain linear rescale of position/zoom drifts from the visible composition
// because of layout box effects. These empirically tuned multipliers close
// that gap at export time only; the live preview never sees them.
type Profile struct {
	XPositionFactor float64 `json:"xPositionFactor"`
	YPositionFactor float64 `json:"yPositionFactor"`
	ZoomFactor      float64 `json:"zoomFactor"`
}

// Default returns the factory calibration.
func Default() Profile {
	return Profile{XPositionFactor: 1.65, YPositionFactor: 1.65, ZoomFactor: 0.64}
}

// valid reports whether every factor is positive.
func (p Profile) valid() bool {
	return p.XPositionFactor > 0 && p.YPositionFactor > 0 && p.ZoomFactor > 0
}

// Store persists one Profile as a single JSON file, overwritten wholesale on
// every save. There are no merge semantics.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted profile. A missing file, unreadable JSON or
// non-positive factors all fall back silently to Default; calibration is
// never a fatal concern.
func (s *Store) Load() Profile {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Default()
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Default()
	}
	if !p.valid() {
		return Default()
	}
	return p
}

// Save persists the profile unconditionally, replacing any prior value.
func (s *Store) Save(p Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("calibration: marshal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("calibration: write %s: %w", s.path, err)
	}
	return nil
}

// Reset persists the factory profile and returns it.
func (s *Store) Reset() (Profile, error) {
	p := Default()
	if err := s.Save(p); err != nil {
		return p, err
	}
	return p, nil
}
