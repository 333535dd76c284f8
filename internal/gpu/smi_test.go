package gpu

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	apperrors "codeberg.org/mutker/argus/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSMIOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		usage   float64
		temp    float64
		gpuName *string
		wantErr bool
	}{
		{
			name:    "plain",
			out:     "37, 61, NVIDIA GeForce RTX 3080\n",
			usage:   37,
			temp:    61,
			gpuName: strPtr("NVIDIA GeForce RTX 3080"),
		},
		{
			name:    "name with commas",
			out:     "5, 40, Tesla T4, Rev A, OEM",
			usage:   5,
			temp:    40,
			gpuName: strPtr("Tesla T4, Rev A, OEM"),
		},
		{
			name:  "empty name",
			out:   "5, 40, ",
			usage: 5,
			temp:  40,
		},
		{
			name:    "only first line",
			out:     "1, 2, First\n3, 4, Second\n",
			usage:   1,
			temp:    2,
			gpuName: strPtr("First"),
		},
		{name: "empty", out: "", wantErr: true},
		{name: "too few fields", out: "5, 40", wantErr: true},
		{name: "not available", out: "[N/A], 40, GPU", wantErr: true},
		{name: "bad temperature", out: "5, hot, GPU", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseSMIOutput(tt.out)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, ErrParseOutput))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, r.Usage)
			require.NotNil(t, r.TempC)
			assert.Equal(t, tt.usage, *r.Usage)
			assert.Equal(t, tt.temp, *r.TempC)
			assert.Equal(t, tt.gpuName, r.Name)
		})
	}
}

func TestSMIBackendProbe(t *testing.T) {
	var gotName string
	var gotArgs []string
	lookups := 0

	b := newSMIBackend(2)
	b.lookPath = func(string) (string, error) {
		lookups++
		return "/usr/bin/nvidia-smi", nil
	}
	b.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("12, 50, NVIDIA A100\n"), nil
	}

	for i := 0; i < 2; i++ {
		r, err := b.Probe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 12.0, *r.Usage)
	}

	assert.Equal(t, 1, lookups, "executable path cached")
	assert.Equal(t, "/usr/bin/nvidia-smi", gotName)
	assert.Equal(t, []string{
		"--id=2",
		"--query-gpu=utilization.gpu,temperature.gpu,name",
		"--format=csv,noheader,nounits",
	}, gotArgs)
}

func TestSMIBackendNotFound(t *testing.T) {
	lookups := 0
	b := newSMIBackend(0)
	b.lookPath = func(string) (string, error) {
		lookups++
		return "", errors.New("not in PATH")
	}
	b.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("command must not run without an executable")
		return nil, nil
	}

	for i := 0; i < 2; i++ {
		_, err := b.Probe(context.Background())
		assert.True(t, apperrors.HasCode(err, ErrCommandNotFound))
	}
	assert.Equal(t, 2, lookups, "lookup retried until found")
}

func TestSMIBackendTimeout(t *testing.T) {
	b := newSMIBackend(0)
	b.timeout = 10 * time.Millisecond
	b.lookPath = func(string) (string, error) { return "nvidia-smi", nil }
	b.run = func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := b.Probe(context.Background())
	assert.True(t, apperrors.HasCode(err, ErrCommandTimeout))
}

func TestExecRunnerBoundedByOrphanedChild(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// the background sleep keeps stdout open after sh is killed
	start := time.Now()
	_, err = execRunner(ctx, sh, "-c", "sleep 3 & sleep 3")
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, 2500*time.Millisecond)
}

func TestSMIBackendCommandFailure(t *testing.T) {
	b := newSMIBackend(0)
	b.lookPath = func(string) (string, error) { return "nvidia-smi", nil }
	b.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 9")
	}

	_, err := b.Probe(context.Background())
	assert.True(t, apperrors.HasCode(err, ErrCommandFailed))
}

func strPtr(s string) *string { return &s }
