package viz

import (
	"strings"
	"testing"
	"time"
)

func TestStatsOverview(t *testing.T) {
	stats := FeedStats{
		Page:       2,
		PageSize:   50,
		Rows:       25,
		Generation: 1204,
		Polls:      1300,
		Failures:   3,
		Paused:     true,
		LastError:  "backend returned HTTP 503",
		FetchedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	result := StatsOverview(stats)

	for _, want := range []string{
		"Feed Status",
		"Polling:  paused",
		"Page:     3",
		"[##########..........]",
		"25 / 50",
		"1,300 (3 failed)",
		"Updates:  1,204",
		"2024-05-01T12:00:00Z",
		"HTTP 503",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("expected %q in:\n%s", want, result)
		}
	}
}

func TestStatsOverview_Empty(t *testing.T) {
	result := StatsOverview(FeedStats{PageSize: 50})
	if !strings.Contains(result, "Polling:  live") {
		t.Errorf("expected live polling, got:\n%s", result)
	}
	if !strings.Contains(result, "[....................]") {
		t.Errorf("expected empty bar, got:\n%s", result)
	}
	if strings.Contains(result, "Error:") || strings.Contains(result, "Fetched:") {
		t.Errorf("expected no error or fetch time, got:\n%s", result)
	}
}

func TestLMPSummary(t *testing.T) {
	lmps := []LMPStats{
		{Name: "summarize", Calls: 100, Tokens: 12_345},
		{Name: "classify", Calls: 2},
		{Name: "a-really-long-program-name-for-testing", Calls: 0},
	}
	result := LMPSummary(lmps, 80)

	if !strings.Contains(result, "LMPs (3 programs, 102 calls)") {
		t.Errorf("expected header, got:\n%s", result)
	}
	if !strings.Contains(result, "12,345 tokens") {
		t.Errorf("expected token count, got:\n%s", result)
	}
	if !strings.Contains(result, "a-really-long-progr…") {
		t.Errorf("expected truncated name, got:\n%s", result)
	}

	lines := strings.Split(strings.TrimSpace(result), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d:\n%s", len(lines), result)
	}
	// small counts still get one bar cell
	if !strings.Contains(lines[2], "#") {
		t.Errorf("expected a bar for classify, got %q", lines[2])
	}
	if strings.Contains(lines[3], "#") {
		t.Errorf("expected no bar for zero calls, got %q", lines[3])
	}
}

func TestLMPSummary_Empty(t *testing.T) {
	if got := LMPSummary(nil, 80); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1_234_567, "1,234,567"},
		{-1500, "-1,500"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.n); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
