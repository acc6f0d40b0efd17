// Package framesource acquires one representative frame from an image or video path.
package framesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/beststop/parking-server/internal/logger"
)

// ErrUnreadable is returned when no frame can be obtained from a source.
var ErrUnreadable = errors.New("frame source unreadable")

// Source yields one frame for a path.
type Source interface {
	Frame(ctx context.Context, path string) (image.Image, error)
}

// videoExtensions are handed to ffmpeg instead of the image decoders.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
	".mpg":  true,
	".mpeg": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// FileSource reads still images directly and grabs the first frame of videos and
// stream URLs through ffmpeg.
type FileSource struct {
	// BaseDir resolves relative paths. Empty means the working directory.
	BaseDir string

	grabber FrameGrabber
}

// FrameGrabber returns the encoded first frame of a video or stream.
type FrameGrabber interface {
	FirstFrame(ctx context.Context, path string) ([]byte, error)
}

// NewFileSource creates a FileSource using ffmpeg for video.
func NewFileSource(baseDir string) *FileSource {
	return &FileSource{BaseDir: baseDir, grabber: &FFmpegGrabber{}}
}

// WithGrabber replaces the video frame grabber.
func (s *FileSource) WithGrabber(g FrameGrabber) *FileSource {
	s.grabber = g
	return s
}

// Frame implements Source.
func (s *FileSource) Frame(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved := s.resolve(path)
	if IsVideo(resolved) {
		return s.videoFrame(ctx, resolved)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrUnreadable, path, err)
	}
	logger.Debug("FrameSource", "Decoded %s (%s, %dx%d)", filepath.Base(resolved), format,
		img.Bounds().Dx(), img.Bounds().Dy())
	return img, nil
}

func (s *FileSource) videoFrame(ctx context.Context, path string) (image.Image, error) {
	if s.grabber == nil {
		return nil, fmt.Errorf("%w: %s: no video support configured", ErrUnreadable, path)
	}
	data, err := s.grabber.FirstFrame(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decode first frame: %v", ErrUnreadable, path, err)
	}
	return img, nil
}

func (s *FileSource) resolve(path string) string {
	if s.BaseDir == "" || filepath.IsAbs(path) || isStreamURL(path) {
		return path
	}
	return filepath.Join(s.BaseDir, path)
}

// IsVideo reports whether path should be read through ffmpeg.
func IsVideo(path string) bool {
	if isStreamURL(path) {
		return true
	}
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSupported reports whether path looks like something Frame can read.
func IsSupported(path string) bool {
	return IsVideo(path) || imageExtensions[strings.ToLower(filepath.Ext(path))]
}

func isStreamURL(path string) bool {
	lower := strings.ToLower(path)
	for _, scheme := range []string{"rtsp://", "rtmp://", "http://", "https://"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// DisplayName is the label a source is published under.
func DisplayName(path string) string {
	if isStreamURL(path) {
		return path
	}
	return filepath.Base(path)
}
