package assembler

import (
	"sort"
	"testing"
	"time"
)

func TestFormatSortableDateTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"03.01.2026 23:28:22", "20260103232822"},
		{"31.12.2025 23:59:00", "20251231235900"},
		{"01.01.2026 00:01:00", "20260101000100"},
		{"", "00000000000000"},
		{"not a date", "00000000000000"},
		{"2026-01-03 23:28:22", "00000000000000"},
	}
	for _, tt := range tests {
		if got := FormatSortableDateTime(tt.in); got != tt.want {
			t.Errorf("FormatSortableDateTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSortableDateTime_AlwaysFourteenDigits(t *testing.T) {
	for _, in := range []string{"03.01.2026 23:28:22", "", "garbage", "05.07.0099 01:02:03"} {
		if got := FormatSortableDateTime(in); len(got) != 14 {
			t.Errorf("FormatSortableDateTime(%q) = %q, not 14 digits", in, got)
		}
	}
}

func TestParseSortableDateTime_RoundTrip(t *testing.T) {
	times := []string{
		"03.01.2026 23:28:22",
		"29.02.2024 12:00:00",
		"31.12.2025 23:59:59",
	}
	for _, in := range times {
		sortable := FormatSortableDateTime(in)
		parsed, err := ParseSortableDateTime(sortable)
		if err != nil {
			t.Fatalf("ParseSortableDateTime(%q): %v", sortable, err)
		}
		orig, _ := time.Parse(replayTimeLayout, in)
		if !parsed.Equal(orig) {
			t.Errorf("round trip of %q: got %v, want %v", in, parsed, orig)
		}
	}
}

// Ordering by dateTimeSortable must match ordering by true timestamp even
// across year boundaries, where the raw client format sorts wrong.
func TestSortableDateTime_CrossYearSort(t *testing.T) {
	earlier := "31.12.2025 23:59:00"
	later := "01.01.2026 00:01:00"

	sortables := []string{FormatSortableDateTime(earlier), FormatSortableDateTime(later)}
	sort.Sort(sort.Reverse(sort.StringSlice(sortables)))
	if sortables[0] != FormatSortableDateTime(later) {
		t.Errorf("DESC sort put %q first, want the 2026 match", sortables[0])
	}

	// The raw format gets this wrong, which is the whole point.
	raw := []string{earlier, later}
	sort.Sort(sort.Reverse(sort.StringSlice(raw)))
	if raw[0] != earlier {
		t.Error("expected the raw format to sort incorrectly (premise check)")
	}
}

func TestParseUnixTime(t *testing.T) {
	if got := ParseUnixTime(""); got != 0 {
		t.Errorf("empty input: got %d, want 0", got)
	}
	if got := ParseUnixTime("garbage"); got != 0 {
		t.Errorf("malformed input: got %d, want 0", got)
	}
	got := ParseUnixTime("01.01.2026 00:00:00")
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestMatchKey_Deterministic(t *testing.T) {
	names := []string{"charlie", "alpha", "bravo"}
	a := MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", names)
	b := MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", []string{"bravo", "charlie", "alpha"})
	if a != b {
		t.Errorf("key depends on player order:\n%s\n%s", a, b)
	}
}

func TestMatchKey_ClockSkewCollides(t *testing.T) {
	names := []string{"alpha", "bravo"}
	// Two uploaders whose clocks disagree by 45 seconds within the same
	// 5-minute bucket must produce the same key.
	a := MatchKey("04.01.2026 21:56:10", "spaces/19_OC_prey", "clan", names)
	b := MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", names)
	if a != b {
		t.Errorf("skewed clocks should collide:\n%s\n%s", a, b)
	}
}

func TestMatchKey_RoundsDownOnBoundary(t *testing.T) {
	onBoundary := MatchKey("04.01.2026 21:55:00", "m", "clan", nil)
	justAfter := MatchKey("04.01.2026 21:55:01", "m", "clan", nil)
	justBefore := MatchKey("04.01.2026 21:54:59", "m", "clan", nil)

	if onBoundary != justAfter {
		t.Error("time exactly on the boundary should round to itself")
	}
	if onBoundary == justBefore {
		t.Error("21:54:59 should land in the previous bucket")
	}
}

func TestMatchKey_DistinguishesMatches(t *testing.T) {
	base := MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", []string{"alpha"})
	tests := []string{
		MatchKey("04.01.2026 22:56:55", "spaces/19_OC_prey", "clan", []string{"alpha"}),
		MatchKey("04.01.2026 21:56:55", "spaces/17_NA_fault_line", "clan", []string{"alpha"}),
		MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "pvp", []string{"alpha"}),
		MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", []string{"bravo"}),
	}
	for i, other := range tests {
		if other == base {
			t.Errorf("variant %d collided with base key", i)
		}
	}
}

func TestSyntheticArenaID(t *testing.T) {
	key := MatchKey("04.01.2026 21:56:55", "spaces/19_OC_prey", "clan", []string{"alpha"})
	a := SyntheticArenaID(key)
	b := SyntheticArenaID(key)
	if a != b {
		t.Error("synthetic id not deterministic")
	}
	if len(a) != 4+16 || a[:4] != "tmp-" {
		t.Errorf("unexpected id shape: %q", a)
	}
}
