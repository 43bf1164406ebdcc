package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"caseforge/internal/calibration"
	"caseforge/internal/element"
	"caseforge/internal/imaging"
)

// StandardSizes are the square export resolutions offered in the UI. Render
// itself accepts any positive size.
var StandardSizes = []int{600, 800, 1000, 1200}

// DefaultLoadTimeout bounds the fan-in wait for mockup and element images.
const DefaultLoadTimeout = 10 * time.Second

// Default on-screen size of the mockup preview the transform offsets are
// measured against, used when a render request does not carry one.
const (
	DefaultPreviewWidth  = 300.0
	DefaultPreviewHeight = 600.0
)

var (
	// ErrBusy rejects a render while another is in flight.
	ErrBusy = errors.New("compositor: render already in flight")
	// ErrNoMockup means rendering was requested before any selection.
	ErrNoMockup = errors.New("compositor: no mockup selected")
	// ErrLoadTimeout means the image fan-in did not complete in time.
	ErrLoadTimeout = errors.New("compositor: image load timed out")
)

// Params describes one export render target.
type Params struct {
	Width  int
	Height int
	Format Format
	// JPEGQuality applies to the lossy encoding only; zero means the
	// default of 90.
	JPEGQuality int
	// PreviewWidth/PreviewHeight are the mockup's live on-screen preview
	// size in CSS pixels; element offsets scale by the ratio of the raster
	// draw size to these.
	PreviewWidth  float64
	PreviewHeight float64
}

func (p Params) withDefaults() Params {
	if p.JPEGQuality <= 0 {
		p.JPEGQuality = DefaultJPEGQuality
	}
	if p.PreviewWidth <= 0 {
		p.PreviewWidth = DefaultPreviewWidth
	}
	if p.PreviewHeight <= 0 {
		p.PreviewHeight = DefaultPreviewHeight
	}
	if p.Format == "" {
		p.Format = FormatPNG
	}
	return p
}

// Scene bundles everything one render reads. Mockup, when non-nil, is the
// already-decoded template image (possibly the selector's placeholder);
// otherwise MockupSource is loaded like any element source.
type Scene struct {
	MockupSource string
	Mockup       *image.NRGBA
	Elements     []element.Element
	Background   string
}

// Compositor renders a mockup plus an ordered element stack to a raster
// image. The calibration profile is a call-time argument, never baked in.
type Compositor struct {
	loader      imaging.Loader
	log         zerolog.Logger
	loadTimeout time.Duration
	busy        atomic.Bool
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithLoadTimeout overrides the asset fan-in deadline.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Compositor) { c.loadTimeout = d }
}

// New creates a compositor that resolves image sources through loader.
func New(loader imaging.Loader, log zerolog.Logger, opts ...Option) *Compositor {
	c := &Compositor{loader: loader, log: log, loadTimeout: DefaultLoadTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render produces the composite for one scene. A second call while one is in
// flight fails with ErrBusy rather than racing on shared buffers.
func (c *Compositor) Render(ctx context.Context, scene Scene, prof calibration.Profile, p Params) (*image.NRGBA, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)
	return c.render(ctx, scene, prof, p)
}

func (c *Compositor) render(ctx context.Context, scene Scene, prof calibration.Profile, p Params) (*image.NRGBA, error) {
	p = p.withDefaults()
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("compositor: invalid target %dx%d", p.Width, p.Height)
	}
	if _, err := encoderFor(p.Format); err != nil {
		return nil, err
	}

	mockupImg, elemImgs, err := c.loadScene(ctx, scene)
	if err != nil {
		return nil, err
	}

	// Step 1: offscreen canvas filled with the shared background. The
	// canvas is premultiplied RGBA so x/image/draw interpolates correctly
	// at transparent element edges.
	canvas := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	bg := scene.Background
	if !element.ValidBackground(bg) {
		bg = "#FFFFFF"
	}
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{parseHexColor(bg)}, image.Point{}, draw.Src)

	// Step 3: mockup draw rectangle. A square template fills the canvas
	// edge to edge; anything else aspect-fits centered.
	geo := mockupGeometry(mockupImg, p.Width, p.Height)

	// Step 4: back elements ascending, mockup, front elements ascending.
	col := element.Collection{Elements: scene.Elements}
	order := col.ByLayer()
	for _, i := range order {
		if !scene.Elements[i].Transform.Front {
			c.drawElement(canvas, elemImgs[i], scene.Elements[i], geo, prof, p)
		}
	}
	scaleDraw(canvas, geo.rect, mockupImg)
	for _, i := range order {
		if scene.Elements[i].Transform.Front {
			c.drawElement(canvas, elemImgs[i], scene.Elements[i], geo, prof, p)
		}
	}

	return imaging.ToNRGBA(canvas), nil
}

// geometry carries the mockup placement derived in step 3.
type geometry struct {
	rect image.Rectangle
	// scale is min(canvas/naturalWidth, canvas/naturalHeight); element zoom
	// multiplies by it so artwork tracks the template across export sizes.
	scale float64
	// drawW/drawH are the float draw dimensions before rounding.
	drawW, drawH float64
}

func mockupGeometry(mockupImg *image.NRGBA, width, height int) geometry {
	nw := float64(mockupImg.Bounds().Dx())
	nh := float64(mockupImg.Bounds().Dy())
	w := float64(width)
	h := float64(height)

	g := geometry{scale: math.Min(w/nw, h/nh)}
	switch {
	case nw == nh:
		g.drawW, g.drawH = w, h
	case nw > nh:
		g.drawW = w
		g.drawH = w * nh / nw
	default:
		g.drawH = h
		g.drawW = h * nw / nh
	}
	x0 := (w - g.drawW) / 2
	y0 := (h - g.drawH) / 2
	g.rect = image.Rect(int(math.Round(x0)), int(math.Round(y0)),
		int(math.Round(x0+g.drawW)), int(math.Round(y0+g.drawH)))
	return g
}

// drawElement places one element on the canvas: translate to its calibrated
// canvas position, rotate, scale, then draw centered on its own natural
// dimensions.
func (c *Compositor) drawElement(canvas *image.RGBA, img *image.NRGBA, e element.Element, geo geometry, prof calibration.Profile, p Params) {
	tr := e.Transform

	scaleX := geo.drawW / p.PreviewWidth
	scaleY := geo.drawH / p.PreviewHeight
	cx := float64(p.Width)/2 + tr.PositionX*scaleX*prof.XPositionFactor
	cy := float64(p.Height)/2 + tr.PositionY*scaleY*prof.YPositionFactor

	s := (tr.Zoom / 100) * geo.scale * prof.ZoomFactor
	theta := tr.Rotation * math.Pi / 180
	sin, cos := math.Sin(theta), math.Cos(theta)

	ew := float64(img.Bounds().Dx())
	eh := float64(img.Bounds().Dy())

	// T(cx,cy) · R(θ) · S(s) · T(-ew/2, -eh/2)
	m := f64.Aff3{
		s * cos, -s * sin, cx - s*cos*ew/2 + s*sin*eh/2,
		s * sin, s * cos, cy - s*sin*ew/2 - s*cos*eh/2,
	}

	xdraw.CatmullRom.Transform(canvas, m, premultiply(img), img.Bounds(), xdraw.Over, nil)
}

// scaleDraw composites src into rect with CatmullRom filtering.
func scaleDraw(canvas *image.RGBA, rect image.Rectangle, src *image.NRGBA) {
	xdraw.CatmullRom.Scale(canvas, rect, premultiply(src), src.Bounds(), xdraw.Over, nil)
}

// premultiply converts to premultiplied RGBA so interpolation cannot bleed
// dark halos out of fully transparent texels.
func premultiply(src *image.NRGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}

// loadScene resolves every image the render needs, joining the loads before
// any drawing starts. One deadline covers the whole fan-in; a stalled or
// failed asset aborts the render with the asset named.
func (c *Compositor) loadScene(ctx context.Context, scene Scene) (*image.NRGBA, []*image.NRGBA, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	type task struct {
		name   string
		source string
	}
	var tasks []task
	if scene.Mockup == nil {
		if scene.MockupSource == "" {
			return nil, nil, ErrNoMockup
		}
		tasks = append(tasks, task{name: "mockup", source: scene.MockupSource})
	}
	for _, e := range scene.Elements {
		tasks = append(tasks, task{name: fmt.Sprintf("element %q", e.Name), source: e.Source})
	}

	results := make([]*image.NRGBA, len(tasks))
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func(i int, t task) {
			defer wg.Done()
			img, err := c.loader.Load(t.source)
			if err != nil {
				errs[i] = fmt.Errorf("compositor: load %s: %w", t.name, err)
				return
			}
			results[i] = img
		}(i, t)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("%w after %s", ErrLoadTimeout, c.loadTimeout)
	}

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}

	mockupImg := scene.Mockup
	elemImgs := make([]*image.NRGBA, len(scene.Elements))
	off := 0
	if mockupImg == nil {
		mockupImg = results[0]
		off = 1
	}
	copy(elemImgs, results[off:])
	return mockupImg, elemImgs, nil
}

func parseHexColor(s string) color.NRGBA {
	// s is a validated "#RRGGBB" string.
	r, _ := strconv.ParseUint(s[1:3], 16, 8)
	g, _ := strconv.ParseUint(s[3:5], 16, 8)
	b, _ := strconv.ParseUint(s[5:7], 16, 8)
	return color.NRGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
}
