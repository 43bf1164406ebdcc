package mockup

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/rs/zerolog"

	"caseforge/internal/imaging"
)

// SelectionState tracks where the selector is in its lifecycle.
type SelectionState int

const (
	Unselected SelectionState = iota
	Loading
	Ready
	Failed // placeholder substituted; selection still usable
)

// Observer receives typed selection notifications. Changing fires before the
// switch with the previous template id (-1 when none), so collaborators can
// persist state keyed by the old id; Changed fires after the new template's
// image (or its placeholder) is resolved.
type Observer interface {
	MockupChanging(prevID int)
	MockupChanged(t Template)
}

// Placeholder dimensions roughly match a phone-case aspect ratio.
const (
	placeholderW = 600
	placeholderH = 1200
)

// Placeholder returns the substitute image used when a template fails to
// load: a flat light-gray case blank with a darker border.
func Placeholder() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, placeholderW, placeholderH))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.NRGBA{224, 224, 224, 255}}, image.Point{}, draw.Src)
	border := color.NRGBA{160, 160, 160, 255}
	for x := 0; x < placeholderW; x++ {
		for _, y := range []int{0, 1, placeholderH - 2, placeholderH - 1} {
			img.SetNRGBA(x, y, border)
		}
	}
	for y := 0; y < placeholderH; y++ {
		for _, x := range []int{0, 1, placeholderW - 2, placeholderW - 1} {
			img.SetNRGBA(x, y, border)
		}
	}
	return img
}

// Selector tracks the active mockup template and its decoded image. Selecting
// a template that fails to load substitutes a placeholder and still notifies
// observers, so nothing downstream waits on an image that will never arrive.
type Selector struct {
	catalog *Catalog
	loader  imaging.Loader
	log     zerolog.Logger

	mu        sync.Mutex
	state     SelectionState
	current   Template
	img       *image.NRGBA
	loadErr   error
	observers []Observer
}

// NewSelector creates a selector over the given catalog.
func NewSelector(catalog *Catalog, loader imaging.Loader, log zerolog.Logger) *Selector {
	return &Selector{catalog: catalog, loader: loader, log: log}
}

// Subscribe registers an observer. Observers are notified in subscription
// order.
func (s *Selector) Subscribe(o Observer) {
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// ListAvailable returns the catalog templates (display grouping by model is a
// presentation concern and happens client-side).
func (s *Selector) ListAvailable() ([]Template, error) {
	return s.catalog.List()
}

// Select makes t the active template. It notifies Changing with the previous
// id, loads the template image, and notifies Changed whether or not the load
// succeeded; a failed load substitutes Placeholder.
func (s *Selector) Select(t Template) {
	s.mu.Lock()
	prevID := -1
	if s.state != Unselected {
		prevID = s.current.ID
	}
	observers := append([]Observer(nil), s.observers...)
	s.state = Loading
	s.mu.Unlock()

	for _, o := range observers {
		o.MockupChanging(prevID)
	}

	img, err := s.loadTemplate(t)
	state := Ready
	if err != nil {
		s.log.Warn().Err(err).Int("mockup", t.ID).Msg("mockup image load failed; using placeholder")
		img = Placeholder()
		state = Failed
	}

	s.mu.Lock()
	s.current = t
	s.img = img
	s.loadErr = err
	s.state = state
	s.mu.Unlock()

	for _, o := range observers {
		o.MockupChanged(t)
	}
}

// SelectID resolves an id through the catalog and selects it.
func (s *Selector) SelectID(id int) error {
	t, err := s.catalog.Get(id)
	if err != nil {
		return err
	}
	s.Select(t)
	return nil
}

func (s *Selector) loadTemplate(t Template) (*image.NRGBA, error) {
	path, err := s.catalog.FilePath(t.ID)
	if err != nil {
		return nil, err
	}
	return s.loader.Load(path)
}

// Current returns the active template; ok is false before the first
// selection.
func (s *Selector) Current() (Template, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.state != Unselected
}

// CurrentImage returns the active template's decoded image, which is the
// placeholder after a failed load, or nil before the first selection.
func (s *Selector) CurrentImage() *image.NRGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// State returns the selector lifecycle state.
func (s *Selector) State() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadErr returns the most recent load failure, nil when the current image
// decoded cleanly.
func (s *Selector) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}
