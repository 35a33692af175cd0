package logging

// ProgressSampler throttles "n of total" progress lines to one per percentage
// bucket. Not safe for concurrent use; the runner calls it from its collector.
type ProgressSampler struct {
	bucketSize float64
	lastBucket int
}

// NewProgressSampler emits whenever progress crosses a bucketSize percent
// boundary (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether done/total should be logged. Completion always
// logs once.
func (s *ProgressSampler) ShouldLog(done, total int) bool {
	if s == nil || total <= 0 {
		return true
	}
	percent := float64(done) * 100 / float64(total)
	bucket := int(percent / s.bucketSize)
	if done >= total {
		bucket = int(100/s.bucketSize) + 1
	}
	if bucket <= s.lastBucket {
		return false
	}
	s.lastBucket = bucket
	return true
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.lastBucket = -1
	}
}
