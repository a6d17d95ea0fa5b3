package view

import (
	"strings"
)

type LogoPreviewState struct {
	Enabled bool
	Loading bool
	Raw     string
	Err     string
}

func DetailMaxTop(linesLen, bodyHeight int) int {
	maxTop := linesLen - bodyHeight
	if maxTop < 0 {
		return 0
	}
	return maxTop
}

func RenderDetailLines(lines []string, top, maxLines int) string {
	if len(lines) == 0 {
		return ""
	}
	if top < 0 {
		top = 0
	}
	if top > len(lines)-1 {
		top = len(lines) - 1
	}
	end := len(lines)
	if maxLines > 0 && top+maxLines < end {
		end = top + maxLines
	}
	return strings.Join(lines[top:end], "\n") + "\n"
}

func appendLogoPreview(lines []string, preview LogoPreviewState, contentWidth int) []string {
	if !preview.Enabled {
		return lines
	}
	previewLines := make([]string, 0, 3)
	switch {
	case preview.Loading:
		previewLines = append(previewLines, "Loading logo...")
	case strings.TrimSpace(preview.Raw) != "":
		previewLines = centerLines(strings.Split(strings.TrimRight(preview.Raw, "\r\n"), "\n"), contentWidth)
	case strings.TrimSpace(preview.Err) != "":
		previewLines = append(previewLines, "Logo unavailable: "+strings.TrimSpace(preview.Err))
	}
	if len(previewLines) == 0 {
		return lines
	}
	out := make([]string, 0, len(lines)+len(previewLines)+1)
	out = append(out, lines...)
	out = append(out, "")
	return append(out, previewLines...)
}

func leftPadLines(lines []string, padding int) []string {
	if padding <= 0 || len(lines) == 0 {
		return lines
	}
	prefix := strings.Repeat(" ", padding)
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = prefix + line
	}
	return out
}

func centerLines(lines []string, width int) []string {
	if width <= 0 || len(lines) == 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		visible := visibleLen(line)
		if visible >= width {
			out[i] = line
			continue
		}
		out[i] = strings.Repeat(" ", (width-visible)/2) + line
	}
	return out
}
