package sensors_test

import (
	"testing"

	"codeberg.org/mutker/argus/internal/sensors"
	"github.com/stretchr/testify/assert"
)

func TestParseTempC(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"42000", 42, true},
		{"42", 42, true},
		{" 55500\n", 55.5, true},
		{"0", 0, true},
		{"125000", 125, true},
		{"200000", 0, false},
		{"-5", 0, false},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := sensors.ParseTempC(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestScore(t *testing.T) {
	none := sensors.Preference{}

	tests := []struct {
		name  string
		chip  string
		label string
		pref  sensors.Preference
		check func(t *testing.T, score int)
	}{
		{
			name:  "intel package",
			chip:  "coretemp",
			label: "Package id 0",
			check: func(t *testing.T, score int) { assert.GreaterOrEqual(t, score, 160) },
		},
		{
			name:  "amd tctl",
			chip:  "k10temp",
			label: "Tctl",
			check: func(t *testing.T, score int) { assert.Equal(t, 160, score) },
		},
		{
			name:  "core label",
			chip:  "coretemp",
			label: "Core 3",
			check: func(t *testing.T, score int) { assert.Equal(t, 140, score) },
		},
		{
			name:  "generic cpu chip",
			chip:  "acpi_cpu",
			label: "",
			check: func(t *testing.T, score int) { assert.Equal(t, 60, score) },
		},
		{
			name:  "nvme with cpu-looking label",
			chip:  "nvme0",
			label: "CPU Package",
			check: func(t *testing.T, score int) { assert.LessOrEqual(t, score, -200) },
		},
		{
			name:  "nvme composite",
			chip:  "nvme",
			label: "Composite",
			check: func(t *testing.T, score int) { assert.LessOrEqual(t, score, -200) },
		},
		{
			name:  "amdgpu edge",
			chip:  "amdgpu",
			label: "edge",
			check: func(t *testing.T, score int) { assert.LessOrEqual(t, score, -200) },
		},
		{
			name:  "wifi penalised",
			chip:  "iwlwifi_1",
			label: "",
			check: func(t *testing.T, score int) { assert.Equal(t, -80, score) },
		},
		{
			name:  "preferred chip dominates",
			chip:  "it8686",
			label: "temp1",
			pref:  sensors.Preference{Chip: "IT8686"},
			check: func(t *testing.T, score int) { assert.Equal(t, 500, score) },
		},
		{
			name:  "preferred label stacks",
			chip:  "coretemp",
			label: "Package id 0",
			pref:  sensors.Preference{Chip: "core", Label: "package"},
			check: func(t *testing.T, score int) { assert.Equal(t, 960, score) },
		},
		{
			name:  "preference can lift an excluded chip",
			chip:  "nvme0",
			label: "",
			pref:  sensors.Preference{Chip: "nvme0"},
			check: func(t *testing.T, score int) { assert.Equal(t, 300, score) },
		},
		{
			name:  "unrelated",
			chip:  "acpitz",
			label: "",
			pref:  none,
			check: func(t *testing.T, score int) { assert.Zero(t, score) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, sensors.Score(tt.chip, tt.label, tt.pref))
		})
	}
}
