package render

import (
	"errors"
	"image/color"
	"testing"

	"github.com/wowsvault/replay-api/internal/models"
)

func trackedReplay() *models.DecodedReplay {
	return &models.DecodedReplay{
		OwnTeamID: 0,
		OwnPlayer: models.PlayerRef{Name: "own"},
		Hidden: models.HiddenState{
			Players: map[int64]*models.HiddenPlayer{
				1: {Name: "own", AvatarID: 11, TeamID: 0},
				2: {Name: "friend", AvatarID: 12, TeamID: 0},
				3: {Name: "foe", AvatarID: 13, TeamID: 1},
			},
		},
		Tracks: map[int64][]models.TrackPoint{
			11: {{Clock: 20, X: 10, Y: 10}, {Clock: 10, X: 0, Y: 0}},
			12: {{Clock: 5, X: 100, Y: 100}},
			13: {{Clock: 8, X: -50, Y: 200}},
			99: {{Clock: 1, X: 1, Y: 1}}, // entity with no hidden player
		},
	}
}

func TestResolveTracks(t *testing.T) {
	tracks := resolveTracks(trackedReplay())
	if len(tracks) != 4 {
		t.Fatalf("got %d tracks", len(tracks))
	}

	var own, ally, enemy, neutral int
	for _, tr := range tracks {
		switch {
		case tr.isOwn:
			own++
		case tr.side == models.TeamAlly:
			ally++
		case tr.side == models.TeamEnemy:
			enemy++
		default:
			neutral++
		}
		for i := 1; i < len(tr.points); i++ {
			if tr.points[i-1].Clock > tr.points[i].Clock {
				t.Error("track points not sorted by clock")
			}
		}
	}
	if own != 1 || ally != 1 || enemy != 1 || neutral != 1 {
		t.Errorf("sides = own %d ally %d enemy %d neutral %d", own, ally, enemy, neutral)
	}
}

func TestFrameSequence(t *testing.T) {
	seq := newFrameSequence(resolveTracks(trackedReplay()), 64)
	if seq == nil {
		t.Fatal("nil sequence")
	}
	if seq.total != frameRate*videoSecs {
		t.Errorf("total = %d", seq.total)
	}

	first := seq.frame(0)
	if first.Bounds().Dx() != 64 || first.Bounds().Dy() != 64 {
		t.Errorf("frame bounds = %v", first.Bounds())
	}

	// The final frame must show every track's last position as a dot.
	last := seq.frame(seq.total - 1)
	found := 0
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := last.RGBAAt(x, y)
			if c == colorOwn || c == colorAlly || c == colorEnemy || c == colorNeutral {
				found++
			}
		}
	}
	if found == 0 {
		t.Error("no ship dots drawn on the final frame")
	}
}

func TestNewFrameSequence_NoTracks(t *testing.T) {
	if seq := newFrameSequence(nil, 64); seq != nil {
		t.Error("expected nil sequence for empty tracks")
	}
}

func TestFillCircle_ClipsAtBounds(t *testing.T) {
	seq := newFrameSequence(resolveTracks(trackedReplay()), 16)
	img := seq.frame(0)
	// Drawing at the corner must not panic or write out of bounds.
	fillCircle(img, 0, 0, dotRadius, color.RGBA{R: 1, A: 255})
	fillCircle(img, 15, 15, dotRadius, color.RGBA{R: 1, A: 255})
}

func TestRenderFailure_Error(t *testing.T) {
	err := failure("ffmpeg exited with %d", 1)
	var rf *RenderFailure
	if !errors.As(err, &rf) {
		t.Fatal("failure() should produce *RenderFailure")
	}
	if rf.Cause != "ffmpeg exited with 1" {
		t.Errorf("Cause = %q", rf.Cause)
	}
}

func TestPickUpload(t *testing.T) {
	uploads := []models.UploadRecord{
		{PlayerID: 1}, {PlayerID: 2},
	}
	if got := pickUpload(uploads, 2); got.PlayerID != 2 {
		t.Errorf("pickUpload(2) = %d", got.PlayerID)
	}
	if got := pickUpload(uploads, 99); got.PlayerID != 1 {
		t.Errorf("pickUpload(unknown) should fall back to first, got %d", got.PlayerID)
	}
}
