package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/beststop/parking-server/pkg/types"
)

// HTTPConfig configures the inference sidecar client.
type HTTPConfig struct {
	// URL is the sidecar base URL, e.g. http://localhost:5002.
	URL string
	// Weights is forwarded so one sidecar can serve several models.
	Weights string
	// ImageSize is the longest side frames are scaled down to before upload. 0 disables.
	ImageSize int
	Timeout   time.Duration
	// JPEGQuality of the uploaded frame.
	JPEGQuality int
}

// HTTPDetector sends frames to a Python inference service running the YOLO weights.
//
// Request: multipart POST {URL}/detect with fields image (JPEG), conf, imgsz, weights.
// Response: {"detections":[{"class_id":0,"class_name":"ocupado","confidence":0.91,"bbox":[x1,y1,x2,y2]}]}
type HTTPDetector struct {
	cfg    HTTPConfig
	client *http.Client
}

type detectResponse struct {
	Detections []struct {
		ClassID    int       `json:"class_id"`
		ClassName  string    `json:"class_name"`
		Confidence float64   `json:"confidence"`
		BBox       []float64 `json:"bbox"`
	} `json:"detections"`
	Error string `json:"error,omitempty"`
}

// NewHTTPDetector creates a sidecar client.
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:5002"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 90
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	return &HTTPDetector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// HealthCheck verifies the inference service is running
func (d *HTTPDetector) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.URL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDetect, err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: inference service not reachable: %v", ErrDetect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: inference service unhealthy: status %d", ErrDetect, resp.StatusCode)
	}
	return nil
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, img image.Image, threshold float64) ([]types.Detection, error) {
	scaled, scale := Downscale(img, d.cfg.ImageSize)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %v", ErrDetect, err)
	}
	if err := jpeg.Encode(part, scaled, &jpeg.Options{Quality: d.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrDetect, err)
	}
	fields := map[string]string{
		"conf":  strconv.FormatFloat(threshold, 'f', -1, 64),
		"imgsz": strconv.Itoa(d.cfg.ImageSize),
	}
	if d.cfg.Weights != "" {
		fields["weights"] = d.cfg.Weights
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%w: write field %s: %v", ErrDetect, k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart writer: %v", ErrDetect, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL+"/detect", body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrDetect, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", ErrDetect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: inference service returned status %d: %s",
			ErrDetect, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	var decoded detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrDetect, err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrDetect, decoded.Error)
	}

	out := make([]types.Detection, 0, len(decoded.Detections))
	for _, raw := range decoded.Detections {
		det := types.Detection{
			ClassID:    raw.ClassID,
			Label:      raw.ClassName,
			Confidence: raw.Confidence,
		}
		if len(raw.BBox) == 4 {
			det.BBox = &types.BoundingBox{
				X1: int(raw.BBox[0] / scale),
				Y1: int(raw.BBox[1] / scale),
				X2: int(raw.BBox[2] / scale),
				Y2: int(raw.BBox[3] / scale),
			}
		}
		out = append(out, det)
	}
	return out, nil
}

// Downscale shrinks img so its longest side is at most maxSide and returns the applied
// scale factor (1 when unchanged).
func Downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSide <= 0 || longest <= maxSide {
		return img, 1
	}

	scale := float64(maxSide) / float64(longest)
	w := max(1, int(float64(b.Dx())*scale+0.5))
	h := max(1, int(float64(b.Dy())*scale+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}
