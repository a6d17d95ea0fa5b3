package view

import (
	"testing"

	tuitheme "github.com/glabrego/tvguide-cli/internal/tui/theme"
)

func TestRenderGridRow_PlacesBlocksAndGaps(t *testing.T) {
	th := tuitheme.Default()
	blocks := []GridBlock{
		{Title: "News", Left: 0, Width: 6},
		{Title: "Weather", Left: 8, Width: 4, Live: true},
		{Title: "Late Movie", Left: 12, Width: 30},
	}
	got := stripANSI(RenderGridRow(blocks, 0, 20, th))
	want := "▏News   ▏Wea▏Late Mo"
	if got != want {
		t.Fatalf("RenderGridRow = %q, want %q", got, want)
	}
}

func TestRenderGridRow_OffsetAndOverlap(t *testing.T) {
	th := tuitheme.Default()
	blocks := []GridBlock{
		{Title: "Early", Left: 0, Width: 10},
		{Title: "Overlap", Left: 8, Width: 6},
	}
	got := stripANSI(RenderGridRow(blocks, 5, 12, th))
	want := "▏Earl▏Ove   "
	if got != want {
		t.Fatalf("RenderGridRow = %q, want %q", got, want)
	}
}

func TestRenderGridRow_Empty(t *testing.T) {
	got := stripANSI(RenderGridRow(nil, 0, 16, tuitheme.Default()))
	if got != "  no listings   " {
		t.Fatalf("unexpected empty row %q", got)
	}
}

func TestRenderAxis(t *testing.T) {
	th := tuitheme.Default()
	ticks := []AxisTick{{Label: "20:00", Left: 0}, {Label: "21:00", Left: 10}, {Label: "22:00", Left: 20}}
	got := stripANSI(RenderAxis(ticks, 13, 0, 24, th))
	want := "20:00     21:▼0         "
	if got != want {
		t.Fatalf("RenderAxis = %q, want %q", got, want)
	}
	if got := stripANSI(RenderAxis(ticks, -1, 10, 12, th)); got != "21:00       " {
		t.Fatalf("unexpected panned axis %q", got)
	}
}
