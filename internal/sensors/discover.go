package sensors

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codeberg.org/mutker/argus/internal/errors"
	"github.com/shirou/gopsutil/v3/host"
)

// Candidate is one discovered temperature input.
type Candidate struct {
	Chip      string  `json:"chip"`
	Label     string  `json:"label"`
	TempC     float64 `json:"temp_c"`
	InputPath string  `json:"input_path,omitempty"`
	Score     int     `json:"score"`
}

// OSSensorsFunc returns the temperature readings the OS exposes through
// its sensor API.
type OSSensorsFunc func(ctx context.Context) ([]host.TemperatureStat, error)

// readTempFile reads and parses a single temperature file.
func readTempFile(path string) (float64, error) {
	errFactory := errors.New()

	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadSensor, err)
	}

	v, ok := ParseTempC(string(raw))
	if !ok {
		return 0, errFactory.WithData(ErrImplausibleValue, struct {
			Path string
			Raw  string
		}{
			Path: path,
			Raw:  strings.TrimSpace(string(raw)),
		})
	}

	return v, nil
}

func readTrimmed(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// hwmonCandidates lists every plausible temp*_input below root. Chips
// without a name file are reported under their directory name.
func hwmonCandidates(root string, pref Preference) []Candidate {
	dirs, err := filepath.Glob(filepath.Join(root, "hwmon*"))
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, dir := range dirs {
		chip := readTrimmed(filepath.Join(dir, "name"))
		scoreChip := chip
		if chip == "" {
			chip = filepath.Base(dir)
		}

		inputs, err := filepath.Glob(filepath.Join(dir, "temp*_input"))
		if err != nil {
			continue
		}

		for _, input := range inputs {
			temp, err := readTempFile(input)
			if err != nil {
				continue
			}

			stem := strings.TrimSuffix(filepath.Base(input), "_input")
			label := readTrimmed(filepath.Join(dir, stem+"_label"))

			out = append(out, Candidate{
				Chip:      chip,
				Label:     label,
				TempC:     temp,
				InputPath: input,
				Score:     Score(scoreChip, label, pref),
			})
		}
	}

	return out
}

// thermalZoneCandidates scores each zone by its type, used as both chip
// and label.
func thermalZoneCandidates(root string, pref Preference) []Candidate {
	zones, err := filepath.Glob(filepath.Join(root, "thermal_zone*"))
	if err != nil {
		return nil
	}

	var out []Candidate
	for _, zone := range zones {
		input := filepath.Join(zone, "temp")
		temp, err := readTempFile(input)
		if err != nil {
			continue
		}

		zoneType := readTrimmed(filepath.Join(zone, "type"))
		out = append(out, Candidate{
			Chip:      zoneType,
			Label:     zoneType,
			TempC:     temp,
			InputPath: input,
			Score:     Score(zoneType, zoneType, pref),
		})
	}

	return out
}

// osSensorCandidates converts OS sensor readings. A partial result
// accompanied by warnings is still used.
func osSensorCandidates(ctx context.Context, fn OSSensorsFunc, pref Preference) ([]Candidate, error) {
	if fn == nil {
		return nil, nil
	}

	stats, err := fn(ctx)
	if len(stats) == 0 && err != nil {
		return nil, errors.New().Wrap(ErrOSSensorsFailed, err)
	}

	out := make([]Candidate, 0, len(stats))
	for _, st := range stats {
		if !Plausible(st.Temperature) {
			continue
		}

		group, label := splitSensorKey(st.SensorKey)
		out = append(out, Candidate{
			Chip:  group,
			Label: label,
			TempC: st.Temperature,
			Score: Score(group, label, pref),
		})
	}

	return out, nil
}

// splitSensorKey separates a flattened key such as
// "coretemp_package_id_0" into its group and label. Known CPU driver
// names are kept whole even when they contain an underscore.
func splitSensorKey(key string) (string, string) {
	lower := strings.ToLower(key)
	for _, driver := range cpuDrivers {
		if strings.HasPrefix(lower, driver) {
			return key[:len(driver)], strings.TrimPrefix(key[len(driver):], "_")
		}
	}

	group, label, _ := strings.Cut(key, "_")
	return group, label
}

// sortCandidates orders by score, then temperature, both descending.
func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].TempC > c[j].TempC
	})
}

// pickBest returns the top candidate if it reaches minScore.
func pickBest(c []Candidate, minScore int) (Candidate, bool) {
	if len(c) == 0 {
		return Candidate{}, false
	}

	sortCandidates(c)
	if c[0].Score < minScore {
		return Candidate{}, false
	}

	return c[0], true
}
