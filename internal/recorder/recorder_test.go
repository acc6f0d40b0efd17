package recorder

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beststop/parking-server/pkg/types"
)

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return img
}

func TestAnnotateDrawsBoxes(t *testing.T) {
	dets := []types.Detection{
		{Class: types.SpotFree, Confidence: 0.9, BBox: &types.BoundingBox{X1: 40, Y1: 60, X2: 120, Y2: 140}},
		{Class: types.SpotOccupied, Confidence: 0.8, BBox: &types.BoundingBox{X1: 150, Y1: 60, X2: 230, Y2: 140}},
		{Class: types.SpotUnknown, Confidence: 0.5},
	}
	out := Annotate(frame(320, 240), dets, types.AggregateResult{FreeCount: 1, OccupiedCount: 1, Total: 2, FreePct: 50, OccupiedPct: 50})

	assert.Equal(t, 320, out.Bounds().Dx())
	assert.Equal(t, colorFree, out.RGBAAt(80, 139))
	assert.Equal(t, colorOccupied, out.RGBAAt(229, 100))
	// interior untouched
	assert.Equal(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, out.RGBAAt(80, 100))
}

func TestAnnotateClipsOutOfBoundsBoxes(t *testing.T) {
	dets := []types.Detection{
		{Class: types.SpotFree, BBox: &types.BoundingBox{X1: 300, Y1: 200, X2: 900, Y2: 900}},
		{Class: types.SpotFree, BBox: &types.BoundingBox{X1: 1000, Y1: 1000, X2: 1100, Y2: 1100}},
	}
	out := Annotate(frame(320, 240), dets, types.AggregateResult{})
	assert.Equal(t, colorFree, out.RGBAAt(319, 239))
}

func TestRecorderWritesAndPrunes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "snapshots")
	r, err := New(dir, 2)
	require.NoError(t, err)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		res := types.AggregateResult{Timestamp: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, r.Observe(context.Background(), "Foto1.jpg", frame(64, 48), nil, res))
		// let the writer drain so nothing is dropped
		require.Eventually(t, func() bool { return r.Status().Written == uint64(i+1) }, 2*time.Second, 5*time.Millisecond)
	}
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Observe(context.Background(), "x", frame(1, 1), nil, types.AggregateResult{}), ErrClosed)
	require.NoError(t, r.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	st := r.Status()
	assert.Equal(t, uint64(3), st.Written)
	assert.Equal(t, "Foto1_20260501_080002.000.jpg", st.LastFile)
	assert.Positive(t, st.BytesWritten)

	f, err := os.Open(filepath.Join(dir, st.LastFile))
	require.NoError(t, err)
	defer f.Close()
	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Foto1", sanitize("Foto1.jpg"))
	assert.Equal(t, "rtsp___cam_live", sanitize("rtsp://cam/live"))
	assert.Equal(t, "frame", sanitize(""))
}
