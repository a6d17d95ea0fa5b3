package view

import (
	"strings"

	tuitree "github.com/glabrego/tvguide-cli/internal/tui/tree"
)

type ListRenderInput struct {
	Rows   []tuitree.Row
	Start  int
	End    int
	Cursor int

	RenderGroupLine   func(group tuitree.GroupNode, active bool) string
	RenderChannelLine func(row tuitree.Row, active bool) string
}

func RenderListBody(in ListRenderInput) string {
	if len(in.Rows) == 0 || in.Start >= in.End || in.Start < 0 {
		return ""
	}
	if in.End > len(in.Rows) {
		in.End = len(in.Rows)
	}
	var b strings.Builder
	for i := in.Start; i < in.End; i++ {
		row := in.Rows[i]
		switch row.Kind {
		case tuitree.RowGroup:
			b.WriteString(in.RenderGroupLine(row.Group, i == in.Cursor))
		case tuitree.RowChannel:
			b.WriteString(in.RenderChannelLine(row, i == in.Cursor))
		}
		b.WriteString("\n")
	}
	return b.String()
}
