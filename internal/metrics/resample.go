package metrics

import "math"

// bucketWidth picks the narrowest bucket that keeps [start, end] within
// maxPoints buckets. The width is computed in uint64 so that ranges up
// to the full int64 domain do not overflow. A width of 0 means a single
// bucket covering 2^64 seconds; it is reported as math.MaxInt64.
func bucketWidth(start, end int64, maxPoints int) (uint64, int64, string) {
	if end <= start {
		return 1, 1, ModeRaw
	}

	points := uint64(max(1, maxPoints))
	// ceil((diff+1)/points) == diff/points + 1
	diff := uint64(end) - uint64(start)
	q := diff / points
	if q == math.MaxUint64 {
		return 0, math.MaxInt64, ModeAvgBucket
	}

	width := q + 1
	reported := int64(math.MaxInt64)
	if width < math.MaxInt64 {
		reported = int64(width)
	}
	if width == 1 {
		return width, reported, ModeRaw
	}
	return width, reported, ModeAvgBucket
}

// resampler folds rows, ordered by ts, into fixed-width buckets aligned
// to start.
type resampler struct {
	start  int64
	width  uint64
	out    []Sample
	bucket *bucket
}

type bucket struct {
	index uint64
	count int

	cpuUsage     float64
	memPercent   float64
	memUsedBytes float64
	cpuTempC     optionalMean
	gpuUsage     optionalMean
	gpuTempC     optionalMean

	// taken from the row with the greatest ts; later rows win ties
	ts            int64
	memTotalBytes int64
	gpuName       *string
}

// optionalMean averages only the rows that carried a value.
type optionalMean struct {
	sum float64
	n   int
}

func (m *optionalMean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m optionalMean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}

func newResampler(start int64, width uint64) *resampler {
	return &resampler{start: start, width: width}
}

// add expects start <= s.TS.
func (r *resampler) add(s *Sample) {
	var index uint64
	if r.width > 0 {
		index = (uint64(s.TS) - uint64(r.start)) / r.width
	}
	if r.bucket == nil || r.bucket.index != index {
		r.flush()
		r.bucket = &bucket{index: index, ts: s.TS}
	}

	b := r.bucket
	b.count++
	b.cpuUsage += s.CPUUsage
	b.memPercent += s.MemPercent
	b.memUsedBytes += float64(s.MemUsedBytes)
	b.cpuTempC.add(s.CPUTempC)
	b.gpuUsage.add(s.GPUUsage)
	b.gpuTempC.add(s.GPUTempC)

	if s.TS >= b.ts {
		b.ts = s.TS
		b.memTotalBytes = s.MemTotalBytes
		b.gpuName = s.GPUName
	}
}

func (r *resampler) flush() {
	b := r.bucket
	if b == nil || b.count == 0 {
		return
	}

	n := float64(b.count)
	r.out = append(r.out, Sample{
		TS:            b.ts,
		CPUUsage:      b.cpuUsage / n,
		CPUTempC:      b.cpuTempC.value(),
		MemPercent:    b.memPercent / n,
		MemUsedBytes:  int64(math.Round(b.memUsedBytes / n)),
		MemTotalBytes: b.memTotalBytes,
		GPUUsage:      b.gpuUsage.value(),
		GPUTempC:      b.gpuTempC.value(),
		GPUName:       b.gpuName,
	})
	r.bucket = nil
}

// finish returns the buckets in ascending ts order. Empty buckets never
// appear.
func (r *resampler) finish() []Sample {
	r.flush()
	if r.out == nil {
		return []Sample{}
	}
	return r.out
}
