package store

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseforge/internal/element"
	"caseforge/internal/imaging"
	"caseforge/internal/transform"
)

func openTestStore(t *testing.T) *Disk {
	t.Helper()
	d, err := Open(t.TempDir())
	require.NoError(t, err)
	return d
}

func TestOpenCreatesLayout(t *testing.T) {
	root := t.TempDir()
	d, err := Open(root)
	require.NoError(t, err)

	for _, dir := range []string{d.MockupsDir(), d.UploadsDir(), filepath.Join(root, "elements")} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(root, "calibration.json"), d.CalibrationPath())

	// Reopening an existing root is fine.
	_, err = Open(root)
	require.NoError(t, err)
}

func TestElementsRoundTrip(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Background()

	tr := transform.NewState()
	tr.SetRotation(45)
	col := element.Collection{
		Elements:   []element.Element{{ID: 3, Source: "/files/uploads/a.png", Name: "Element 1", Transform: tr}},
		Background: "#112233",
	}
	require.NoError(t, d.SaveElements(ctx, 7, col))

	got, err := d.LoadElements(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, col, got)

	ids, err := d.SavedElementIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{7}, ids)

	require.NoError(t, d.DeleteElements(ctx, 7))
	_, err = d.LoadElements(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadElementsMissing(t *testing.T) {
	d := openTestStore(t)
	_, err := d.LoadElements(context.Background(), 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadElementsCorrupt(t *testing.T) {
	d := openTestStore(t)
	require.NoError(t, os.WriteFile(d.elementsPath(4), []byte("{nope"), 0644))
	_, err := d.LoadElements(context.Background(), 4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound, "corrupt and missing are distinct failures")
}

func TestDeleteElementsNeverSaved(t *testing.T) {
	d := openTestStore(t)
	assert.NoError(t, d.DeleteElements(context.Background(), 12))
}

func TestSaveElementsOverwritesWholesale(t *testing.T) {
	d := openTestStore(t)
	ctx := context.Background()

	first := element.Collection{Elements: []element.Element{{ID: 1, Source: "a"}}, Background: "#FFFFFF"}
	second := element.Collection{Background: "#000000"}
	require.NoError(t, d.SaveElements(ctx, 1, first))
	require.NoError(t, d.SaveElements(ctx, 1, second))

	got, err := d.LoadElements(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, got.Elements)
	assert.Equal(t, "#000000", got.Background)
}

func TestSaveUserImage(t *testing.T) {
	d := openTestStore(t)

	url, err := d.SaveUserImage(strings.NewReader("fake-png-bytes"), "PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/files/uploads/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	path, err := d.UploadFilePath(url)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fake-png-bytes", string(data))

	// Distinct uploads get distinct names.
	url2, err := d.SaveUserImage(strings.NewReader("x"), ".png")
	require.NoError(t, err)
	assert.NotEqual(t, url, url2)
}

func TestSaveUserImageRejectsUnknownExtension(t *testing.T) {
	d := openTestStore(t)
	_, err := d.SaveUserImage(strings.NewReader("x"), ".exe")
	assert.Error(t, err)
}

func TestUploadFilePathRejectsEscapes(t *testing.T) {
	d := openTestStore(t)
	for _, p := range []string{
		"/files/uploads/../elements/1.json",
		"/files/uploads/",
		"/elsewhere/a.png",
	} {
		_, err := d.UploadFilePath(p)
		assert.Error(t, err, p)
	}
}

func TestResolveSource(t *testing.T) {
	d := openTestStore(t)

	assert.Equal(t,
		filepath.Join(d.FilesRoot(), "uploads", "a.png"),
		d.ResolveSource("/files/uploads/a.png"))

	// Upload URLs resolve through the strict upload mapping.
	strict, err := d.UploadFilePath("/files/uploads/a.png")
	require.NoError(t, err)
	assert.Equal(t, strict, d.ResolveSource("/files/uploads/a.png"))

	// An upload URL smuggling path segments still collapses inside the root.
	assert.True(t, strings.HasPrefix(d.ResolveSource("/files/uploads/../elements/1.json"), d.FilesRoot()))

	assert.Equal(t,
		filepath.Join(d.FilesRoot(), "mockups", "3.png"),
		d.ResolveSource("/files/mockups/3.png"))

	// Traversal collapses inside the root.
	resolved := d.ResolveSource("/files/../../etc/passwd")
	assert.True(t, strings.HasPrefix(resolved, d.FilesRoot()))

	// Non-URL sources pass through.
	assert.Equal(t, "data:image/png;base64,AAAA", d.ResolveSource("data:image/png;base64,AAAA"))
	assert.Equal(t, "/tmp/direct.png", d.ResolveSource("/tmp/direct.png"))
}

func TestSourceLoaderLoadsUploads(t *testing.T) {
	d := openTestStore(t)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	url, err := d.SaveUserImage(&buf, ".png")
	require.NoError(t, err)

	loader := d.Loader(imaging.NewCache())
	got, err := loader.Load(url)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
}
