// Package detector talks to the object-detection model that finds parking spots in a frame.
package detector

import (
	"context"
	"errors"
	"image"

	"github.com/beststop/parking-server/pkg/types"
)

// ErrDetect wraps every failure of a detector call.
var ErrDetect = errors.New("detector failed")

// Detector runs the model over one frame. Detections below threshold are dropped by
// the model, not by the caller.
type Detector interface {
	Detect(ctx context.Context, img image.Image, threshold float64) ([]types.Detection, error)
}

// Func adapts a function to Detector.
type Func func(ctx context.Context, img image.Image, threshold float64) ([]types.Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, img image.Image, threshold float64) ([]types.Detection, error) {
	return f(ctx, img, threshold)
}

// Static returns the same detections for every frame, filtered by threshold.
// Useful for dry runs without a model.
type Static struct {
	Detections []types.Detection
}

// Detect implements Detector.
func (s *Static) Detect(ctx context.Context, _ image.Image, threshold float64) ([]types.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]types.Detection, 0, len(s.Detections))
	for _, d := range s.Detections {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out, nil
}
