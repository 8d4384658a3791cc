package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/shahjoyal/view-bunker/internal/blend"
)

// blendReport renders a blend as markdown.
func blendReport(b *blend.Blend, names [blend.MillCount]string) string {
	var sb strings.Builder
	m := b.Metrics

	if b.ID != "" {
		fmt.Fprintf(&sb, "# Blend %s\n\n", b.ID)
		fmt.Fprintf(&sb, "Recorded %s\n\n", b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	} else {
		sb.WriteString("# Blend preview\n\n")
	}

	sb.WriteString("## Unit\n\n")
	sb.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Generation | %.1f MW |\n", m.GenerationMW)
	fmt.Fprintf(&sb, "| Total flow | %.1f t/h |\n", m.TotalFlow)
	fmt.Fprintf(&sb, "| GCV | %.0f kcal/kg |\n", m.GCV)
	fmt.Fprintf(&sb, "| AFT | %s |\n", formatAFT(m.AFT))
	fmt.Fprintf(&sb, "| Heat rate | %.0f kcal/kWh |\n", m.HeatRate)
	fmt.Fprintf(&sb, "| Cost rate | %.0f /h |\n", m.CostRate)
	fmt.Fprintf(&sb, "| Cost per kWh | %.3f |\n", m.CostPerKWh)
	fmt.Fprintf(&sb, "| Ash / Moisture / VM / FC | %.1f / %.1f / %.1f / %.1f %% |\n",
		m.Proximate.Ash, m.Proximate.Moisture, m.Proximate.VolatileMatter, m.Proximate.FixedCarbon)
	sb.WriteString("\n")

	sb.WriteString("## Mills\n\n")
	sb.WriteString("| Mill | Flow t/h | Blend | GCV | AFT | Cost/t |\n|---|---|---|---|---|---|\n")
	for i, mm := range m.Mills {
		label := mm.Label()
		if label == "" {
			label = "-"
		}
		fmt.Fprintf(&sb, "| %s | %.1f | %s | %.0f | %s | %.0f |\n",
			names[i], mm.Flow, label, mm.GCV, formatAFT(mm.AFT), mm.Cost)
	}

	if len(b.Input.Rows) > 0 {
		sb.WriteString("\n## Coals\n\n")
		sb.WriteString("| Coal | GCV | Ash % | Cost/t |\n|---|---|---|---|\n")
		for _, r := range b.Input.Rows {
			if r.Coal == nil {
				continue
			}
			fmt.Fprintf(&sb, "| %s | %.0f | %.1f | %.0f |\n", r.Coal.Name, r.Coal.GCV, r.Coal.Proximate.Ash, r.Coal.Cost)
		}
	}
	return sb.String()
}

func formatAFT(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f °C", v)
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
