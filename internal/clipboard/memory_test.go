package clipboard

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TextAndImageReplaceEachOther(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Text(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, m.SetText(ctx, "hello"))
	text, err := m.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	_, err = m.Image(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	img := Image{Width: 1, Height: 1, Pix: []byte{9, 9, 9, 255}}
	require.NoError(t, m.SetImage(ctx, img))
	got, err := m.Image(ctx)
	require.NoError(t, err)
	assert.Equal(t, img, got)
	_, err = m.Text(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	assert.Equal(t, 2, m.Writes())
}

func TestMemory_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	m.FailWrites(boom)
	assert.ErrorIs(t, m.SetText(ctx, "x"), boom)
	assert.Equal(t, 0, m.Writes())

	m.FailWrites(nil)
	require.NoError(t, m.SetText(ctx, "x"))

	m.FailReads(boom)
	_, err := m.Text(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestMemory_WatchSignalsWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()

	ch, err := m.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, m.SetText(ctx, "a"))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestImage_PNGRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(2, 1, color.NRGBA{B: 255, A: 255})

	img := ImageFrom(src)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Len(t, img.Pix, 3*2*4)

	data, err := img.EncodePNG()
	require.NoError(t, err)

	decoded, err := DecodePNG(data)
	require.NoError(t, err)
	assert.Equal(t, img, decoded)
}

func TestImage_TranslucentRoundTripIsExact(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 1))
	src.SetRGBA(0, 0, color.RGBA{R: 100, G: 50, B: 10, A: 128})
	src.SetRGBA(1, 0, color.RGBA{R: 3, G: 2, B: 1, A: 7})
	src.SetRGBA(2, 0, color.RGBA{R: 200, G: 0, B: 90, A: 201})

	img := ImageFrom(src)
	for i := 0; i < 3; i++ {
		data, err := img.EncodePNG()
		require.NoError(t, err)
		decoded, err := DecodePNG(data)
		require.NoError(t, err)
		require.Equal(t, img, decoded, "round trip %d", i)
	}
}

func TestDecodePNG_Empty(t *testing.T) {
	_, err := DecodePNG(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = DecodePNG([]byte("not a png"))
	assert.Error(t, err)
}
