package view

import (
	"strings"
	"time"

	"github.com/glabrego/tvguide-cli/internal/render/description"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

type DetailInput struct {
	Channel tvapi.Channel
	// Program is the program under the detail cursor, if the channel has any.
	Program *tvapi.Program
	Loc     *time.Location
	Now     time.Time
	Width   int
}

// DetailMetaLines describes the channel itself.
func DetailMetaLines(ch tvapi.Channel, now time.Time, width int) []string {
	lines := make([]string, 0, 8)
	name := strings.TrimSpace(ch.Name)
	if name == "" {
		name = ch.ID
	}
	lines = append(lines, truncateCells(name, width))
	lines = append(lines, strings.Repeat("=", max(1, min(width, visibleLen(name)))))
	lines = append(lines, "")

	lines = append(lines, truncateCells("Group: "+ch.GroupName(), width))
	if ch.IsFavorite {
		lines = append(lines, "Favorite: yes")
	} else {
		lines = append(lines, "Favorite: no")
	}
	lines = append(lines, "Watched: "+WatchedLabel(now, ch.LastWatched.Time))
	if ch.IsMissing {
		lines = append(lines, "Stream: missing from the last playlist")
	} else if ch.URL != "" {
		lines = append(lines, truncateCells("Stream: "+ch.URL, width))
	}
	return lines
}

func DetailLines(in DetailInput, horizontalMargin int, preview LogoPreviewState) []string {
	lines := DetailMetaLines(in.Channel, in.Now, in.Width)
	lines = appendLogoPreview(lines, preview, in.Width)
	lines = append(lines, "")
	if in.Program == nil {
		lines = append(lines, "No listings in the guide window.")
	} else {
		lines = append(lines, description.Detail(*in.Program, in.Loc, in.Now, in.Width)...)
	}
	return leftPadLines(lines, horizontalMargin)
}
