package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/argus/internal/config"
	"codeberg.org/mutker/argus/internal/sensors"
	"github.com/charmbracelet/lipgloss"
)

type sensorConfig struct {
	SysfsPath      string `json:"cpu_temp_sysfs_path"`
	PreferredChip  string `json:"cpu_temp_preferred_chip"`
	PreferredLabel string `json:"cpu_temp_preferred_label"`
	MinScore       int    `json:"cpu_temp_min_score"`
	CacheTTL       int    `json:"cpu_temp_cache_ttl"`
}

// sensorReport is the output of --list-sensors.
type sensorReport struct {
	Config      sensorConfig        `json:"config"`
	Status      sensors.Status      `json:"status"`
	Candidates  []sensors.Candidate `json:"candidates"`
	Recommended *sensors.Candidate  `json:"recommended"`
}

func buildSensorReport(ctx context.Context, cfg *config.Config, source *sensors.Source) sensorReport {
	report := sensorReport{
		Config: sensorConfig{
			SysfsPath:      cfg.CPUTempSysfsPath,
			PreferredChip:  cfg.CPUTempPreferredChip,
			PreferredLabel: cfg.CPUTempPreferredLabel,
			MinScore:       cfg.CPUTempMinScore,
			CacheTTL:       cfg.CPUTempCacheTTL,
		},
		Status:     source.Status(ctx),
		Candidates: source.ListCandidates(),
	}
	if best, ok := source.Recommended(); ok {
		report.Recommended = &best
	}

	return report
}

// writeSensorReport writes indented JSON, or a styled table when pretty
// is set.
func writeSensorReport(w io.Writer, report sensorReport, pretty bool) error {
	if !pretty {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	_, err := fmt.Fprintln(w, renderSensorReport(report))
	return err
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	pickStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1)
)

func renderSensorReport(r sensorReport) string {
	header := titleStyle.Render("CPU temperature sensors")

	status := fmt.Sprintf("method %s  reading %s  min score %d",
		r.Status.Method, formatTemp(r.Status.TempC), r.Status.MinScore)
	if r.Status.Source != nil {
		status += "\n" + subtleStyle.Render(fmt.Sprintf("source %s / %s",
			r.Status.Source.Chip, r.Status.Source.Label))
	}
	if r.Status.SysfsPath != "" {
		status += "\n" + subtleStyle.Render("override "+r.Status.SysfsPath)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		card("Status", status),
		card("Candidates", renderCandidates(r.Candidates, r.Recommended)),
	)
}

func renderCandidates(candidates []sensors.Candidate, recommended *sensors.Candidate) string {
	if len(candidates) == 0 {
		return subtleStyle.Render("no hwmon temperature inputs found")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %-16s %-20s %7s %6s  %s\n", "chip", "label", "temp", "score", "input")
	for _, c := range candidates {
		line := fmt.Sprintf("%-16s %-20s %6.1f° %6d  %s",
			truncate(c.Chip, 16), truncate(c.Label, 20), c.TempC, c.Score, c.InputPath)
		if recommended != nil && c.InputPath == recommended.InputPath {
			b.WriteString(pickStyle.Render("* " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func card(title, body string) string {
	return cardStyle.Render(labelStyle.Render(title) + "\n" + body)
}

func formatTemp(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f°C", *v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
