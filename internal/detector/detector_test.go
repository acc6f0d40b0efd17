package detector

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beststop/parking-server/pkg/types"
)

func TestHTTPDetectorScalesBoxesBack(t *testing.T) {
	var gotConf, gotSize, gotWeights string
	var gotWidth int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/detect", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		gotConf = r.FormValue("conf")
		gotSize = r.FormValue("imgsz")
		gotWeights = r.FormValue("weights")

		f, _, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		img, err := jpeg.Decode(f)
		if assert.NoError(t, err) {
			gotWidth = img.Bounds().Dx()
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"class_id": 1, "class_name": "vazio", "confidence": 0.9, "bbox": []float64{10, 20, 110, 70}},
				{"class_id": 0, "class_name": "ocupado", "confidence": 0.5},
			},
		})
	}))
	defer srv.Close()

	d := NewHTTPDetector(HTTPConfig{URL: srv.URL + "/", ImageSize: 640, Weights: "best.pt"})
	dets, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1280, 720)), 0.3)
	require.NoError(t, err)

	assert.Equal(t, "0.3", gotConf)
	assert.Equal(t, "640", gotSize)
	assert.Equal(t, "best.pt", gotWeights)
	assert.Equal(t, 640, gotWidth)

	require.Len(t, dets, 2)
	assert.Equal(t, "vazio", dets[0].Label)
	assert.Equal(t, &types.BoundingBox{X1: 20, Y1: 40, X2: 220, Y2: 140}, dets[0].BBox)
	assert.Nil(t, dets[1].BBox)
}

func TestHTTPDetectorErrors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHTTPDetector(HTTPConfig{URL: srv.URL}).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.3)
		require.ErrorIs(t, err, ErrDetect)
		assert.Contains(t, err.Error(), "model not loaded")
	})

	t.Run("error field", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detections":[],"error":"cuda oom"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPDetector(HTTPConfig{URL: srv.URL}).Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.3)
		require.ErrorIs(t, err, ErrDetect)
		assert.Contains(t, err.Error(), "cuda oom")
	})

	t.Run("unreachable", func(t *testing.T) {
		d := NewHTTPDetector(HTTPConfig{URL: "http://127.0.0.1:1", Timeout: time.Second})
		_, err := d.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8)), 0.3)
		assert.ErrorIs(t, err, ErrDetect)
		assert.ErrorIs(t, d.HealthCheck(context.Background()), ErrDetect)
	})
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, NewHTTPDetector(HTTPConfig{URL: srv.URL}).HealthCheck(context.Background()))
}

func TestDownscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 100))

	out, scale := Downscale(src, 0)
	assert.Same(t, src, out)
	assert.Equal(t, 1.0, scale)

	out, scale = Downscale(src, 640)
	assert.Same(t, src, out)
	assert.Equal(t, 1.0, scale)

	out, scale = Downscale(src, 150)
	assert.Equal(t, 150, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
	assert.InDelta(t, 0.5, scale, 1e-9)
}

func TestStaticFiltersByThreshold(t *testing.T) {
	s := &Static{Detections: []types.Detection{
		{ClassID: 1, Confidence: 0.9},
		{ClassID: 0, Confidence: 0.1},
	}}
	dets, err := s.Detect(context.Background(), nil, 0.3)
	require.NoError(t, err)
	assert.Len(t, dets, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Detect(ctx, nil, 0.3)
	assert.ErrorIs(t, err, context.Canceled)
}
