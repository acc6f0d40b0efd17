package framesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegGrabber extracts the first frame of a video as JPEG using the ffmpeg binary.
type FFmpegGrabber struct{}

// FirstFrame implements FrameGrabber.
func (g *FFmpegGrabber) FirstFrame(ctx context.Context, path string) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	var out, stderr bytes.Buffer
	stream := ffmpeg.Input(path).Output("pipe:", ffmpeg.KwArgs{
		"vframes": 1,
		"format":  "image2",
		"vcodec":  "mjpeg",
	})
	stream.Context = ctx
	if err := stream.WithOutput(&out, &stderr).Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		return nil, fmt.Errorf("ffmpeg: %w (%s)", err, msg)
	}
	if out.Len() == 0 {
		return nil, errors.New("ffmpeg produced no frame")
	}
	return out.Bytes(), nil
}
