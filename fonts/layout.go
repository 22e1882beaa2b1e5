package fonts

import "strings"

// Measurer is the part of Font that Layout needs.
type Measurer interface {
	Width(text string, size float64) float64
}

// Layout breaks text into lines no wider than maxWidth at size points.
// Explicit newlines always break. Lines break at spaces; a single word wider
// than maxWidth keeps a line of its own. maxWidth <= 0 disables wrapping.
func Layout(m Measurer, text string, size, maxWidth float64) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		if maxWidth <= 0 {
			lines = append(lines, para)
			continue
		}
		lines = append(lines, wrap(m, para, size, maxWidth)...)
	}
	return lines
}

func wrap(m Measurer, para string, size, maxWidth float64) []string {
	words := strings.Split(para, " ")
	var (
		lines []string
		cur   string
		has   bool
	)
	for _, w := range words {
		if !has {
			cur, has = w, true
			continue
		}
		candidate := cur + " " + w
		if m.Width(candidate, size) <= maxWidth {
			cur = candidate
			continue
		}
		lines = append(lines, cur)
		cur = w
	}
	return append(lines, cur)
}

// Height is the vertical extent of n lines set at size with the given
// line height multiplier.
func Height(n int, size, lineHeight float64) float64 {
	if n <= 0 {
		return 0
	}
	return size + float64(n-1)*size*lineHeight
}
