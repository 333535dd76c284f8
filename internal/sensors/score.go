package sensors

import (
	"strconv"
	"strings"
)

const (
	MinPlausibleC = 0.0
	MaxPlausibleC = 125.0

	// raw values above this are millidegrees
	milliThreshold = 1000.0

	driverScore         = 100
	genericChipScore    = 60
	cpuLabelScore       = 60
	coreLabelScore      = 40
	excludedPenalty     = 200
	excludedCeiling     = -200
	peripheralPenalty   = 80
	preferredChipScore  = 500
	preferredLabelScore = 300
)

var (
	cpuDrivers  = []string{"coretemp", "k10temp", "cpu_thermal", "zenpower", "x86_pkg_temp"}
	cpuLabels   = []string{"package", "tctl", "tdie", "cpu"}
	nonCPU      = []string{"nvme", "amdgpu", "gpu"}
	peripherals = []string{"pch", "battery", "wifi"}
)

// Preference is the operator's hint for which sensor is the CPU. Empty
// fields match nothing.
type Preference struct {
	Chip  string
	Label string
}

// Plausible reports whether v is a believable CPU temperature.
func Plausible(v float64) bool {
	return v >= MinPlausibleC && v <= MaxPlausibleC
}

// ParseTempC parses a sysfs-style temperature. Values above 1000 are
// taken as millidegrees. Unparseable or implausible input yields false.
func ParseTempC(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if v > milliThreshold {
		v /= 1000
	}
	if !Plausible(v) {
		return 0, false
	}

	return v, true
}

// Score ranks how likely (chip, label) is to be the CPU temperature.
// A non-CPU match never scores above -200 unless an operator
// preference lifts it.
func Score(chip, label string, pref Preference) int {
	chip = strings.ToLower(chip)
	label = strings.ToLower(label)

	score := 0

	switch {
	case containsAny(chip, cpuDrivers):
		score += driverScore
	case strings.Contains(chip, "cpu"):
		score += genericChipScore
	}

	switch {
	case containsAny(label, cpuLabels):
		score += cpuLabelScore
	case strings.Contains(label, "core"):
		score += coreLabelScore
	}

	if containsAny(chip, nonCPU) || containsAny(label, nonCPU) {
		score = min(score-excludedPenalty, excludedCeiling)
	}

	if containsAny(chip, peripherals) || containsAny(label, peripherals) {
		score -= peripheralPenalty
	}

	if p := strings.ToLower(strings.TrimSpace(pref.Chip)); p != "" && strings.Contains(chip, p) {
		score += preferredChipScore
	}
	if p := strings.ToLower(strings.TrimSpace(pref.Label)); p != "" && strings.Contains(label, p) {
		score += preferredLabelScore
	}

	return score
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
