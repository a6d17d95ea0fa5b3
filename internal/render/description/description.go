// Package description turns program descriptions into wrapped terminal lines.
// Guide feeds carry plain text, entity-escaped text, or small HTML fragments;
// all three end up as readable paragraphs.
package description

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	nethtml "golang.org/x/net/html"

	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

var (
	reANSICodes = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	reHTTPURL   = regexp.MustCompile(`https?://[^\s)]+`)
	reMarkup    = regexp.MustCompile(`(?i)<\s*/?\s*[a-z][a-z0-9]*[^>]*>`)
)

type renderer struct {
	width int
}

// Lines renders raw as wrapped lines no wider than width cells.
func Lines(raw string, width int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if !reMarkup.MatchString(raw) {
		return trimBlankLines(wrapText(normalizeText(raw), width))
	}
	doc, err := nethtml.Parse(strings.NewReader("<html><body>" + raw + "</body></html>"))
	if err != nil {
		return wrapText(normalizeText(raw), width)
	}
	body := findBodyNode(doc)
	if body == nil {
		return wrapText(normalizeText(raw), width)
	}
	r := renderer{width: max(1, width)}
	return styleLinks(trimBlankLines(r.renderNodes(elementChildren(body))))
}

// Text is the description as plain text, paragraphs separated by newlines.
func Text(raw string) string {
	lines := Lines(raw, 1<<16)
	return stripANSI(strings.Join(lines, "\n"))
}

// Detail renders the detail pane of a program: title, time span in loc,
// category, live marker, then the wrapped description.
func Detail(p tvapi.Program, loc *time.Location, now time.Time, width int) []string {
	if loc == nil {
		loc = time.Local
	}
	lines := make([]string, 0, 8)
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "(untitled)"
	}
	lines = append(lines, styleAll(wrapText(title, width), titleStyle)...)

	start := p.Start.In(loc)
	end := p.End.In(loc)
	meta := fmt.Sprintf("%s - %s (%s)", start.Format("Mon 15:04"), end.Format("15:04"), formatDuration(p.Duration()))
	if cat := strings.TrimSpace(p.Category); cat != "" {
		meta += " · " + cat
	}
	lines = append(lines, metaStyle.Render(truncate(meta, width)))
	if !now.Before(p.Start.Time) && now.Before(p.End.Time) {
		left := p.End.Sub(now).Round(time.Minute)
		lines = append(lines, liveStyle.Render(truncate("LIVE · "+formatDuration(left)+" left", width)))
	}

	if body := Lines(p.Description, width); len(body) > 0 {
		lines = append(lines, "")
		lines = append(lines, body...)
	}
	return lines
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh%02dm", h, m)
	}
}

func (r renderer) renderNodes(nodes []*nethtml.Node) []string {
	lines := make([]string, 0, len(nodes)*2)
	inline := make([]string, 0, 4)
	appendBlock := func(block []string) {
		if len(block) == 0 {
			return
		}
		if len(lines) > 0 && lines[len(lines)-1] != "" {
			lines = append(lines, "")
		}
		lines = append(lines, block...)
	}
	flush := func() {
		text := normalizeText(strings.Join(inline, " "))
		inline = inline[:0]
		if text != "" {
			appendBlock(wrapText(text, r.width))
		}
	}

	for _, node := range nodes {
		switch node.Type {
		case nethtml.TextNode:
			inline = append(inline, node.Data)
		case nethtml.ElementNode:
			if isBlockElement(node.Data) {
				flush()
				appendBlock(r.renderBlock(node))
				continue
			}
			inline = append(inline, r.renderInline(node))
		}
	}
	flush()
	return trimBlankLines(lines)
}

func (r renderer) renderBlock(node *nethtml.Node) []string {
	switch strings.ToLower(node.Data) {
	case "script", "style", "noscript", "img":
		return nil
	case "ul", "ol":
		return r.renderList(node, strings.EqualFold(node.Data, "ol"))
	case "blockquote":
		inner := wrapText(normalizeText(r.renderInlineChildren(node)), r.width-2)
		out := make([]string, 0, len(inner))
		for _, line := range inner {
			out = append(out, quotePrefix+quoteText.Render(line))
		}
		return out
	case "hr":
		return []string{strings.Repeat("-", min(max(r.width, 3), 24))}
	default:
		if hasBlockChild(node) {
			return r.renderNodes(elementChildren(node))
		}
		return wrapText(normalizeText(r.renderInlineChildren(node)), r.width)
	}
}

func (r renderer) renderList(node *nethtml.Node, ordered bool) []string {
	lines := make([]string, 0, 8)
	n := 0
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != nethtml.ElementNode || !strings.EqualFold(child.Data, "li") {
			continue
		}
		n++
		marker := "• "
		if ordered {
			marker = fmt.Sprintf("%d. ", n)
		}
		text := normalizeText(r.renderInlineChildren(child))
		if text == "" {
			continue
		}
		pad := strings.Repeat(" ", runewidth.StringWidth(marker))
		for i, line := range wrapText(text, max(1, r.width-len(pad))) {
			if i == 0 {
				lines = append(lines, marker+line)
				continue
			}
			lines = append(lines, pad+line)
		}
	}
	return lines
}

func (r renderer) renderInlineChildren(node *nethtml.Node) string {
	parts := make([]string, 0, 4)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		parts = append(parts, r.renderInline(child))
	}
	return strings.Join(parts, " ")
}

func (r renderer) renderInline(node *nethtml.Node) string {
	switch node.Type {
	case nethtml.TextNode:
		return node.Data
	case nethtml.ElementNode:
		switch strings.ToLower(node.Data) {
		case "script", "style", "noscript", "img":
			return ""
		case "br":
			return "\n"
		case "a":
			text := normalizeText(r.renderInlineChildren(node))
			href := nodeAttr(node, "href")
			switch {
			case href == "":
				return text
			case text == "" || strings.EqualFold(text, href):
				return href
			default:
				return text + " (" + href + ")"
			}
		default:
			return r.renderInlineChildren(node)
		}
	}
	return ""
}

// normalizeText unescapes entities and collapses whitespace inside each
// line, keeping explicit line breaks.
func normalizeText(s string) string {
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	parts := strings.Split(s, "\n")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Join(strings.Fields(part), " ")
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	replacer := strings.NewReplacer(
		" .", ".",
		" ,", ",",
		" ;", ";",
		" :", ":",
		" !", "!",
		" ?", "?",
		" )", ")",
		"( ", "(",
	)
	return replacer.Replace(strings.Join(out, "\n"))
}

// wrapText wraps on word boundaries by display width. Words wider than the
// line are split.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if width < 1 {
		return []string{text}
	}
	out := make([]string, 0, 4)
	for _, p := range strings.Split(text, "\n") {
		words := strings.Fields(p)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			for runewidth.StringWidth(word) > width {
				if line != "" {
					out = append(out, line)
					line = ""
				}
				head := runewidth.Truncate(word, width, "")
				if head == "" {
					break
				}
				out = append(out, head)
				word = word[len(head):]
			}
			if word == "" {
				continue
			}
			if line == "" {
				line = word
				continue
			}
			if runewidth.StringWidth(line)+1+runewidth.StringWidth(word) <= width {
				line += " " + word
				continue
			}
			out = append(out, line)
			line = word
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func truncate(s string, width int) string {
	if width < 1 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func styleAll(lines []string, style lipgloss.Style) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = style.Render(line)
	}
	return out
}

func styleLinks(lines []string) []string {
	for i, line := range lines {
		lines[i] = reHTTPURL.ReplaceAllStringFunc(line, func(u string) string {
			return linkURLStyle.Render(u)
		})
	}
	return lines
}

func trimBlankLines(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return nil
	}
	out := make([]string, 0, end-start)
	prevBlank := false
	for _, line := range lines[start:end] {
		blank := strings.TrimSpace(line) == ""
		if blank && prevBlank {
			continue
		}
		out = append(out, line)
		prevBlank = blank
	}
	return out
}

func stripANSI(s string) string {
	return reANSICodes.ReplaceAllString(s, "")
}

func findBodyNode(node *nethtml.Node) *nethtml.Node {
	if node == nil {
		return nil
	}
	if node.Type == nethtml.ElementNode && strings.EqualFold(node.Data, "body") {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findBodyNode(child); found != nil {
			return found
		}
	}
	return nil
}

func elementChildren(node *nethtml.Node) []*nethtml.Node {
	children := make([]*nethtml.Node, 0, 4)
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == nethtml.TextNode && strings.TrimSpace(child.Data) == "" {
			continue
		}
		children = append(children, child)
	}
	return children
}

func nodeAttr(node *nethtml.Node, name string) string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}

func isBlockElement(tag string) bool {
	switch strings.ToLower(tag) {
	case "p", "div", "section", "article", "header", "footer",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"blockquote", "ul", "ol", "li", "pre", "hr", "img", "table", "figure":
		return true
	}
	return false
}

func hasBlockChild(node *nethtml.Node) bool {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == nethtml.ElementNode && isBlockElement(child.Data) {
			return true
		}
	}
	return false
}
