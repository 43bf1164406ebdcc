package interaction

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseforge/internal/element"
	"caseforge/internal/transform"
)

type nullPersistence struct{}

func (nullPersistence) SaveElements(context.Context, int, element.Collection) error { return nil }
func (nullPersistence) LoadElements(context.Context, int) (element.Collection, error) {
	return element.Collection{}, nil
}
func (nullPersistence) DeleteElements(context.Context, int) error { return nil }

func newFixture(t *testing.T) (*Controller, *element.Store) {
	t.Helper()
	st := element.NewStore(nullPersistence{}, zerolog.Nop(), element.WithSaveDelay(time.Hour))
	t.Cleanup(st.Close)
	return NewController(st, zerolog.Nop()), st
}

func TestPressWithoutActiveElement(t *testing.T) {
	c, _ := newFixture(t)
	assert.False(t, c.PressAt(10, 10))
	assert.False(t, c.IsDragging())
	assert.ErrorIs(t, c.RotateBy(RotateStep), element.ErrNoActive)
	assert.ErrorIs(t, c.ZoomBy(ZoomStep), element.ErrNoActive)
}

func TestDragMovesActiveElement(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	require.True(t, c.PressAt(10, 10))
	c.MoveTo(40, 25)

	e, _, ok := st.Active()
	require.True(t, ok)
	assert.Equal(t, 30.0, e.Transform.PositionX)
	assert.Equal(t, 15.0, e.Transform.PositionY)

	// Further motion in the same session is measured from the press point,
	// not from the last move.
	c.MoveTo(20, 10)
	e, _, _ = st.Active()
	assert.Equal(t, 10.0, e.Transform.PositionX)
	assert.Equal(t, 0.0, e.Transform.PositionY)

	c.Release()
	c.MoveTo(300, 300)
	e, _, _ = st.Active()
	assert.Equal(t, 10.0, e.Transform.PositionX, "moves after release are ignored")
}

func TestDragClampsAtBounds(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	require.True(t, c.PressAt(0, 0))
	c.MoveTo(1000, -1000)
	e, _, _ := st.Active()
	assert.Equal(t, transform.MaxPosition, e.Transform.PositionX)
	assert.Equal(t, transform.MinPosition, e.Transform.PositionY)
}

func TestDragResumesFromCurrentPosition(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	require.True(t, c.PressAt(0, 0))
	c.MoveTo(50, 0)
	c.Release()

	// A new session bases itself on the position left by the first one.
	require.True(t, c.PressAt(100, 100))
	c.MoveTo(110, 100)
	e, _, _ := st.Active()
	assert.Equal(t, 60.0, e.Transform.PositionX)
}

func TestRotateStepWraps(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	want := []float64{90, 180, -90, 0}
	for _, w := range want {
		require.NoError(t, c.RotateBy(RotateStep))
		e, _, _ := st.Active()
		assert.Equal(t, w, e.Transform.Rotation)
	}
}

func TestZoomStepClamps(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	for i := 0; i < 30; i++ {
		require.NoError(t, c.ZoomBy(ZoomStep))
	}
	e, _, _ := st.Active()
	assert.Equal(t, transform.MaxZoom, e.Transform.Zoom)

	for i := 0; i < 60; i++ {
		require.NoError(t, c.ZoomBy(-ZoomStep))
	}
	e, _, _ = st.Active()
	assert.Equal(t, transform.MinZoom, e.Transform.Zoom)
}

func TestAbsoluteSetters(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("img")

	require.NoError(t, c.SetRotation(45))
	require.NoError(t, c.SetZoom(150))
	require.NoError(t, c.SetPosition(-20, 35))

	s := c.State()
	assert.Equal(t, 45.0, s.Rotation)
	assert.Equal(t, 150.0, s.Zoom)
	assert.Equal(t, -20.0, s.PositionX)
	assert.Equal(t, 35.0, s.PositionY)
}

func TestSelectCancelsDragAndRepopulatesState(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("a")
	st.AddElement("b") // active, index 1
	require.NoError(t, c.SetRotation(45))

	require.True(t, c.PressAt(0, 0))
	c.Select(0)
	assert.False(t, c.IsDragging())

	s := c.State()
	assert.True(t, s.HasActive)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, "Element 1", s.Name)
	assert.Equal(t, 0.0, s.Rotation, "controls reflect the newly active element")

	// The abandoned drag must not move anything.
	c.MoveTo(80, 80)
	e, _, _ := st.Active()
	assert.Equal(t, 0.0, e.Transform.PositionX)
}

func TestResetKeepsLayerPlacement(t *testing.T) {
	c, st := newFixture(t)
	st.AddElement("a")
	st.AddElement("b")
	require.NoError(t, c.SetRotation(90))
	require.NoError(t, c.SetPosition(10, 10))
	require.NoError(t, st.SetBackground("#112233"))

	require.NoError(t, c.Reset())

	s := c.State()
	assert.Equal(t, 0.0, s.Rotation)
	assert.Equal(t, 0.0, s.PositionX)
	assert.Equal(t, transform.DefaultZoom, s.Zoom)
	assert.Equal(t, 1, s.LayerIndex, "reset never touches stacking")
	assert.Equal(t, "#112233", s.Background, "reset never touches background")
}

func TestStateWithoutActiveElement(t *testing.T) {
	c, _ := newFixture(t)
	s := c.State()
	assert.False(t, s.HasActive)
	assert.Equal(t, element.NoActive, s.Index)
	assert.Equal(t, transform.DefaultBackground, s.Background)
}
