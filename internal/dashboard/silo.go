package dashboard

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/shahjoyal/view-bunker/internal/binder"
)

const (
	siloWidth  = 18 // inner width
	siloHeight = 12 // inner rows
)

// FormatClock renders seconds as m:ss, or h:mm:ss from an hour up.
func FormatClock(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "--:--"
	}
	s := int(math.Ceil(seconds))
	h, m := s/3600, (s%3600)/60
	s %= 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// layerRows splits height rows between the undrained layers in proportion
// to their remaining tonnes against capacity. Every shown layer gets at
// least one row; when they overflow the silo the shares are squeezed. With
// more undrained layers than rows, the bottom height-1 get a row each and
// hidden counts the rest, which are drawn as one "+N more" row on top.
func layerRows(layers []binder.LayerView, capacity float64, height int) (rows []int, hidden int) {
	rows = make([]int, len(layers))
	var undrained []int
	for i, l := range layers {
		if l.Status != binder.StatusDrained {
			undrained = append(undrained, i)
		}
	}
	if len(undrained) > height {
		shown := height - 1
		if shown < 0 {
			shown = 0
		}
		for _, i := range undrained[:shown] {
			rows[i] = 1
		}
		return rows, len(undrained) - shown
	}

	if capacity <= 0 {
		capacity = 1
	}
	total := 0
	for _, i := range undrained {
		l := layers[i]
		share := l.RemainingTonnes / capacity
		if l.Tonnes <= 0 {
			share = l.Left / float64(len(layers)) // timer-only layer
		}
		n := int(math.Round(share * float64(height)))
		if n < 1 {
			n = 1
		}
		rows[i] = n
		total += n
	}
	for total > height {
		// Shave the tallest layer until everything fits.
		tallest := -1
		for i, n := range rows {
			if n > 1 && (tallest < 0 || n > rows[tallest]) {
				tallest = i
			}
		}
		if tallest < 0 {
			break
		}
		rows[tallest]--
		total--
	}
	return rows, 0
}

// truncate shortens s to at most width terminal cells, ending in "…".
func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	r := []rune(s)
	for len(r) > 0 && lipgloss.Width(string(r))+1 > width {
		r = r[:len(r)-1]
	}
	return string(r) + "…"
}

func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// renderSilo draws one bunker with its layers stacked bottom-to-top.
func renderSilo(name string, v binder.BunkerView, capacity float64, styles Styles) string {
	rows, hidden := layerRows(v.Layers, capacity, siloHeight)

	var body []string // top to bottom
	used := 0
	if hidden > 0 {
		body = append(body, styles.Muted.Render(pad(fmt.Sprintf("+%d more", hidden), siloWidth)))
		used++
	}
	for i := len(v.Layers) - 1; i >= 0; i-- {
		n := rows[i]
		if n == 0 {
			continue
		}
		l := v.Layers[i]
		color := ""
		if l.Metrics != nil && len(l.Metrics.Composition) > 0 {
			color = l.Metrics.Composition[0].Color
		}
		style := styles.LayerStyle(color, i)

		label := l.Label
		if label == "" {
			label = l.BlendID
		}
		lines := make([]string, n)
		if l.Status == binder.StatusActive {
			clock := FormatClock(l.RemainingSeconds)
			if l.Stalled {
				clock = "stalled"
			}
			lines[n-1] = "▶ " + clock
			if n > 1 {
				lines[0] = label
			}
		} else {
			lines[0] = label
		}
		for _, line := range lines {
			body = append(body, style.Render(pad(truncate(line, siloWidth), siloWidth)))
		}
		used += n
	}
	empty := make([]string, 0, siloHeight)
	for i := used; i < siloHeight; i++ {
		empty = append(empty, strings.Repeat(" ", siloWidth))
	}
	if v.Empty && len(empty) > 0 {
		empty[len(empty)-1] = styles.Muted.Render(pad("   empty", siloWidth))
	}
	body = append(empty, body...)

	frame := styles.Silo
	if !v.Empty && !v.Stalled {
		frame = styles.SiloActive
	}

	caption := []string{
		styles.Bold.Render(pad(name, siloWidth+2)),
		styles.Body.Render(fmt.Sprintf("%.1f t/h  %.0f t", v.Flow, v.RemainingTonnes)),
	}
	switch {
	case v.Empty:
		caption = append(caption, styles.Muted.Render("no coal"))
	case v.Stalled:
		caption = append(caption, styles.Warning.Render("no flow"))
	default:
		caption = append(caption, styles.Info.Render("empty in "+FormatClock(v.SecondsToEmpty)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		frame.Render(strings.Join(body, "\n")),
		strings.Join(caption, "\n"),
	)
}
