package compositor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"caseforge/internal/calibration"
	"caseforge/internal/element"
	"caseforge/internal/mockup"
)

// File is one batch-rendered output.
type File struct {
	Name string
	Data []byte
}

// RenderCurrent renders the selector's active template with the store's
// current collection.
func (c *Compositor) RenderCurrent(ctx context.Context, sel *mockup.Selector, st *element.Store, prof calibration.Profile, p Params) (*image.NRGBA, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)
	return c.renderCurrent(ctx, sel, st, prof, p)
}

func (c *Compositor) renderCurrent(ctx context.Context, sel *mockup.Selector, st *element.Store, prof calibration.Profile, p Params) (*image.NRGBA, error) {
	img := sel.CurrentImage()
	if img == nil {
		return nil, ErrNoMockup
	}
	col := st.Collection()
	scene := Scene{Mockup: img, Elements: col.Elements, Background: col.Background}
	return c.render(ctx, scene, prof, p)
}

// RenderAll renders every given template in order: each is selected
// (letting the element store run its save/load cycle), rendered and encoded.
// Whatever was selected before the batch is restored afterwards, so the
// editor never ends up pointing at a template the user did not pick.
func (c *Compositor) RenderAll(ctx context.Context, sel *mockup.Selector, st *element.Store, prof calibration.Profile, p Params, templates []mockup.Template) ([]File, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.busy.Store(false)

	prev, hadSelection := sel.Current()
	defer func() {
		if hadSelection {
			sel.Select(prev)
		}
	}()

	p = p.withDefaults()
	files := make([]File, 0, len(templates))
	for i, t := range templates {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("compositor: batch canceled: %w", err)
		}
		sel.Select(t)
		img, err := c.renderCurrent(ctx, sel, st, prof, p)
		if err != nil {
			return nil, fmt.Errorf("compositor: batch item %d (mockup %d): %w", i+1, t.ID, err)
		}
		var buf bytes.Buffer
		if err := Encode(&buf, img, p.Format, p.JPEGQuality); err != nil {
			return nil, err
		}
		files = append(files, File{Name: BatchName(t, i, p), Data: buf.Bytes()})
	}
	return files, nil
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeName reduces a template model/name to filesystem-safe characters.
func SanitizeName(s string) string {
	s = unsafeNameRe.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "mockup"
	}
	return s
}

// ExportName builds the download filename for a single render.
func ExportName(t mockup.Template, p Params) string {
	p = p.withDefaults()
	return fmt.Sprintf("%s-%d-%dx%d.%s", SanitizeName(t.Model), t.ID, p.Width, p.Height, p.Format.Ext())
}

// BatchName builds the deterministic filename for batch item i.
func BatchName(t mockup.Template, i int, p Params) string {
	p = p.withDefaults()
	return fmt.Sprintf("%s-%02d-%dx%d.%s", SanitizeName(t.Model), i+1, p.Width, p.Height, p.Format.Ext())
}
