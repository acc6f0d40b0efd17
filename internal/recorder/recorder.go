// Package recorder writes annotated JPEG snapshots of analysed frames.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/beststop/parking-server/internal/logger"
	"github.com/beststop/parking-server/pkg/types"
)

// ErrClosed is returned by Observe after Close.
var ErrClosed = errors.New("recorder closed")

var (
	colorFree     = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	colorOccupied = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	colorUnknown  = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	colorText     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorTextBG   = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

const boxThickness = 3

type snapshot struct {
	source     string
	img        image.Image
	detections []types.Detection
	result     types.AggregateResult
}

// Recorder renders snapshots on its own goroutine so the cycler never waits on disk.
type Recorder struct {
	mu           sync.RWMutex
	dir          string
	keep         int
	closed       bool
	written      uint64
	dropped      uint64
	bytesWritten uint64
	lastFile     string

	snapChan chan snapshot
	wg       sync.WaitGroup
}

// Status is the recorder state exposed on /api/status.
type Status struct {
	Dir          string `json:"dir"`
	Written      uint64 `json:"written"`
	Dropped      uint64 `json:"dropped"`
	BytesWritten uint64 `json:"bytes_written"`
	LastFile     string `json:"last_file,omitempty"`
}

// New creates dir if needed and starts the writer. keep <= 0 keeps every file.
func New(dir string, keep int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	r := &Recorder{
		dir:      dir,
		keep:     keep,
		snapChan: make(chan snapshot, 4),
	}
	r.wg.Add(1)
	go r.writeSnapshots()
	return r, nil
}

// Observe queues a snapshot (non-blocking). Snapshots are dropped when the queue is full.
func (r *Recorder) Observe(_ context.Context, source string, img image.Image, detections []types.Detection, result types.AggregateResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	dets := make([]types.Detection, len(detections))
	copy(dets, detections)

	select {
	case r.snapChan <- snapshot{source: source, img: img, detections: dets, result: result}:
	default:
		r.dropped++
		logger.Debug("Recorder", "Queue full, dropped snapshot of %s", source)
	}
	return nil
}

// Status returns counters.
func (r *Recorder) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Dir:          r.dir,
		Written:      r.written,
		Dropped:      r.dropped,
		BytesWritten: r.bytesWritten,
		LastFile:     r.lastFile,
	}
}

// Close flushes queued snapshots and stops the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.snapChan)
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Recorder) writeSnapshots() {
	defer r.wg.Done()

	for snap := range r.snapChan {
		name, n, err := r.writeSnapshot(snap)
		if err != nil {
			logger.Warn("Recorder", "Snapshot of %s failed: %v", snap.source, err)
			continue
		}

		r.mu.Lock()
		r.written++
		r.bytesWritten += uint64(n)
		r.lastFile = name
		r.mu.Unlock()

		if err := r.prune(); err != nil {
			logger.Warn("Recorder", "Prune failed: %v", err)
		}
	}
}

func (r *Recorder) writeSnapshot(snap snapshot) (string, int64, error) {
	ts := snap.result.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	name := fmt.Sprintf("%s_%s.jpg", sanitize(snap.source), ts.Format("20060102_150405.000"))
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	if err := jpeg.Encode(f, Annotate(snap.img, snap.detections, snap.result), &jpeg.Options{Quality: 85}); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("failed to encode: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return "", 0, err
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("failed to close file: %w", err)
	}
	return name, info.Size(), nil
}

func (r *Recorder) prune() error {
	if r.keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return err
	}

	type file struct {
		name string
		mod  time.Time
	}
	var files []file
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, file{name: e.Name(), mod: info.ModTime()})
	}
	if len(files) <= r.keep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].name < files[j].name
		}
		return files[i].mod.Before(files[j].mod)
	})
	for _, f := range files[:len(files)-r.keep] {
		if err := os.Remove(filepath.Join(r.dir, f.name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Annotate returns a copy of img with boxes, confidences and the tally drawn on it.
func Annotate(img image.Image, detections []types.Detection, result types.AggregateResult) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	for _, det := range detections {
		if det.BBox == nil {
			continue
		}
		c := classColor(det.Class)
		rect := image.Rect(det.BBox.X1, det.BBox.Y1, det.BBox.X2, det.BBox.Y2).Intersect(dst.Bounds())
		if rect.Empty() {
			continue
		}
		drawRect(dst, rect, c, boxThickness)

		label := fmt.Sprintf("%s %.2f", det.Class, det.Confidence)
		labelY := rect.Min.Y - 4
		if labelY < 13 {
			labelY = rect.Max.Y + 13
		}
		drawText(dst, rect.Min.X, labelY, label, c)
	}

	stats := fmt.Sprintf("Livres: %d (%.2f%%)  Ocupadas: %d (%.2f%%)",
		result.FreeCount, result.FreePct, result.OccupiedCount, result.OccupiedPct)
	drawText(dst, 6, 16, stats, colorText)
	return dst
}

func classColor(c types.SpotClass) color.RGBA {
	switch c {
	case types.SpotFree:
		return colorFree
	case types.SpotOccupied:
		return colorOccupied
	default:
		return colorUnknown
	}
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	src := image.NewUniform(c)
	t := min(thickness, r.Dx(), r.Dy())
	for _, edge := range []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+t)},
		{Min: image.Pt(r.Min.X, r.Max.Y-t), Max: r.Max},
		{Min: r.Min, Max: image.Pt(r.Min.X+t, r.Max.Y)},
		{Min: image.Pt(r.Max.X-t, r.Min.Y), Max: r.Max},
	} {
		draw.Draw(dst, edge, src, image.Point{}, draw.Src)
	}
}

// drawText writes s with its baseline at (x, y) over a dark background.
func drawText(dst *image.RGBA, x, y int, s string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	width := d.MeasureString(s).Ceil()
	bg := image.Rect(x-2, y-face.Ascent-2, x+width+2, y+face.Descent+2)
	draw.Draw(dst, bg, image.NewUniform(colorTextBG), image.Point{}, draw.Over)
	d.DrawString(s)
}

func sanitize(source string) string {
	base := strings.TrimSuffix(source, filepath.Ext(source))
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "frame"
	}
	return sb.String()
}
