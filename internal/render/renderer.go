// Package render produces minimap MP4 videos from decoded replays. Frames
// are drawn from the position timelines and streamed one at a time as raw
// RGBA into an ffmpeg child process; ffmpeg owns the encode.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/wowsvault/replay-api/internal/models"
)

const (
	frameSize  = 760 // square minimap, px
	frameRate  = 30
	videoSecs  = 60 // whole battle compressed into one minute
	dotRadius  = 4
	trailAlpha = 90
)

// Minimap palette: own player gold, allies green, enemies red.
var (
	colorBackground = color.RGBA{R: 16, G: 28, B: 40, A: 255}
	colorGrid       = color.RGBA{R: 30, G: 46, B: 62, A: 255}
	colorOwn        = color.RGBA{R: 255, G: 200, B: 40, A: 255}
	colorAlly       = color.RGBA{R: 80, G: 220, B: 100, A: 255}
	colorEnemy      = color.RGBA{R: 235, G: 70, B: 70, A: 255}
	colorNeutral    = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

// RenderFailure wraps any renderer error with its cause string; it is never
// retried automatically.
type RenderFailure struct {
	Cause string
}

func (e *RenderFailure) Error() string { return "render: " + e.Cause }

func failure(format string, args ...any) error {
	return &RenderFailure{Cause: fmt.Sprintf(format, args...)}
}

// Renderer drives ffmpeg. Safe for concurrent use.
type Renderer struct {
	ffmpegPath string
	logger     *zap.SugaredLogger
}

func NewRenderer(ffmpegPath string, logger *zap.Logger) *Renderer {
	return &Renderer{ffmpegPath: ffmpegPath, logger: logger.Sugar()}
}

// track is one entity's timeline with its resolved side.
type track struct {
	points []models.TrackPoint
	side   models.Team
	isOwn  bool
}

// Render produces the single-perspective minimap video for one replay.
func (r *Renderer) Render(ctx context.Context, decoded *models.DecodedReplay) ([]byte, error) {
	seq := newFrameSequence(resolveTracks(decoded), frameSize)
	if seq == nil {
		return nil, failure("replay has no position timeline")
	}
	return r.encode(ctx, frameSize, frameSize, seq.total, func(w io.Writer, i int) error {
		_, err := w.Write(seq.frame(i).Pix)
		return err
	})
}

// RenderDual produces the combined two-perspective video: the ally-side
// replay on the left, the enemy-side replay on the right.
func (r *Renderer) RenderDual(ctx context.Context, green, red *models.DecodedReplay) ([]byte, error) {
	left := newFrameSequence(resolveTracks(green), frameSize)
	right := newFrameSequence(resolveTracks(red), frameSize)
	if left == nil || right == nil {
		return nil, failure("one of the replays has no position timeline")
	}

	combined := image.NewRGBA(image.Rect(0, 0, frameSize*2, frameSize))
	return r.encode(ctx, frameSize*2, frameSize, left.total, func(w io.Writer, i int) error {
		draw.Draw(combined, image.Rect(0, 0, frameSize, frameSize), left.frame(i), image.Point{}, draw.Src)
		draw.Draw(combined, image.Rect(frameSize, 0, frameSize*2, frameSize), right.frame(i), image.Point{}, draw.Src)
		_, err := w.Write(combined.Pix)
		return err
	})
}

// resolveTracks joins position timelines with the hidden player table to
// color each dot by side.
func resolveTracks(decoded *models.DecodedReplay) []track {
	byAvatar := make(map[int64]*models.HiddenPlayer, len(decoded.Hidden.Players))
	for _, hp := range decoded.Hidden.Players {
		byAvatar[hp.AvatarID] = hp
	}

	var out []track
	for entityID, points := range decoded.Tracks {
		if len(points) == 0 {
			continue
		}
		sorted := append([]models.TrackPoint(nil), points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Clock < sorted[j].Clock })

		t := track{points: sorted, side: models.TeamUnknown}
		if hp, ok := byAvatar[entityID]; ok {
			if hp.TeamID == decoded.OwnTeamID {
				t.side = models.TeamAlly
			} else {
				t.side = models.TeamEnemy
			}
			t.isOwn = hp.Name == decoded.OwnPlayer.Name
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].points[0].Clock < out[j].points[0].Clock })
	return out
}

// frameSequence rasterizes timelines into a fixed-length frame sequence,
// one frame at a time; the frame buffer is reused between calls.
type frameSequence struct {
	tracks   []track
	size     int
	total    int
	minClock float64
	span     float64

	minX, maxX, minY, maxY float64
	buf                    *image.RGBA
}

func newFrameSequence(tracks []track, size int) *frameSequence {
	if len(tracks) == 0 {
		return nil
	}

	seq := &frameSequence{
		tracks: tracks,
		size:   size,
		total:  frameRate * videoSecs,
		buf:    image.NewRGBA(image.Rect(0, 0, size, size)),
	}

	seq.minClock = math.MaxFloat64
	maxClock := -math.MaxFloat64
	seq.minX, seq.minY = math.MaxFloat64, math.MaxFloat64
	seq.maxX, seq.maxY = -math.MaxFloat64, -math.MaxFloat64
	for _, t := range tracks {
		if c := float64(t.points[0].Clock); c < seq.minClock {
			seq.minClock = c
		}
		if c := float64(t.points[len(t.points)-1].Clock); c > maxClock {
			maxClock = c
		}
		for _, p := range t.points {
			seq.minX = math.Min(seq.minX, float64(p.X))
			seq.maxX = math.Max(seq.maxX, float64(p.X))
			seq.minY = math.Min(seq.minY, float64(p.Y))
			seq.maxY = math.Max(seq.maxY, float64(p.Y))
		}
	}
	seq.span = maxClock - seq.minClock
	if seq.span <= 0 {
		seq.span = 1
	}
	return seq
}

func (s *frameSequence) project(p models.TrackPoint) (int, int) {
	nx := (float64(p.X) - s.minX) / math.Max(s.maxX-s.minX, 1)
	ny := (float64(p.Y) - s.minY) / math.Max(s.maxY-s.minY, 1)
	margin := float64(dotRadius * 2)
	px := margin + nx*(float64(s.size)-2*margin)
	// Screen y grows downward; world y grows northward.
	py := float64(s.size) - (margin + ny*(float64(s.size)-2*margin))
	return int(px), int(py)
}

// frame renders frame i into the shared buffer.
func (s *frameSequence) frame(i int) *image.RGBA {
	cutoff := s.minClock + s.span*float64(i+1)/float64(s.total)
	drawBackground(s.buf)

	for _, t := range s.tracks {
		c := colorNeutral
		switch {
		case t.isOwn:
			c = colorOwn
		case t.side == models.TeamAlly:
			c = colorAlly
		case t.side == models.TeamEnemy:
			c = colorEnemy
		}

		var last *models.TrackPoint
		for j := range t.points {
			if float64(t.points[j].Clock) > cutoff {
				break
			}
			p := t.points[j]
			last = &p
			x, y := s.project(p)
			trail := c
			trail.A = trailAlpha
			setPixel(s.buf, x, y, trail)
		}
		if last != nil {
			x, y := s.project(*last)
			fillCircle(s.buf, x, y, dotRadius, c)
		}
	}
	return s.buf
}

func drawBackground(img *image.RGBA) {
	draw.Draw(img, img.Bounds(), &image.Uniform{C: colorBackground}, image.Point{}, draw.Src)
	size := img.Bounds().Dx()
	step := size / 10
	for i := step; i < size; i += step {
		for j := 0; j < img.Bounds().Dy(); j++ {
			img.SetRGBA(i, j, colorGrid)
		}
		for j := 0; j < size; j++ {
			if image.Pt(j, i).In(img.Bounds()) {
				img.SetRGBA(j, i, colorGrid)
			}
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func fillCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// encode pipes frames into ffmpeg and returns the MP4 bytes. writeFrame is
// called once per frame index, in order.
func (r *Renderer) encode(ctx context.Context, width, height, total int, writeFrame func(w io.Writer, i int) error) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "render-*")
	if err != nil {
		return nil, failure("temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)
	outPath := filepath.Join(tmpDir, "out.mp4")

	cmd := exec.CommandContext(ctx, r.ffmpegPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", fmt.Sprintf("%d", frameRate),
		"-i", "-",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-y", outPath,
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, failure("ffmpeg stdin: %v", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, failure("ffmpeg start: %v", err)
	}

	var writeErr error
	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			writeErr = ctx.Err()
			break
		}
		if writeErr = writeFrame(stdin, i); writeErr != nil {
			break
		}
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		r.logger.Errorw("ffmpeg failed", "error", err, "stderr", stderr.String())
		return nil, failure("ffmpeg: %v", err)
	}
	if writeErr != nil {
		return nil, failure("write frames: %v", writeErr)
	}

	mp4, err := os.ReadFile(outPath)
	if err != nil {
		return nil, failure("read output: %v", err)
	}
	return mp4, nil
}
