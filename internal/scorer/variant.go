package scorer

import (
	"crypto/sha256"
	"encoding/binary"
)

// bucketResolution is the number of distinct hash buckets in [0,1).
const bucketResolution = 10000

// Resolver deterministically assigns entities to experiment variants. It
// holds no mutable state and is safe for concurrent use.
type Resolver struct {
	enabled bool
	control string
	traffic []TrafficSplit
}

// NewResolver builds a resolver from the A/B test config.
func NewResolver(cfg ABTestConfig) *Resolver {
	control := cfg.Control
	if control == "" {
		control = ControlVariant
	}
	traffic := make([]TrafficSplit, len(cfg.Traffic))
	copy(traffic, cfg.Traffic)
	return &Resolver{enabled: cfg.Enabled, control: control, traffic: traffic}
}

// Assign returns the variant for entityID under testName. When testing is
// disabled it always returns the control variant. Otherwise it walks the
// traffic split in order, accumulating weights until the running total
// exceeds the entity's hash bucket; rounding shortfalls fall back to the
// first variant in the split.
func (r *Resolver) Assign(entityID, testName string) string {
	if !r.enabled || len(r.traffic) == 0 {
		return r.control
	}
	bucket := Bucket(testName, entityID)
	var cumulative float64
	for _, ts := range r.traffic {
		cumulative += ts.Weight
		if bucket < cumulative {
			return ts.Variant
		}
	}
	return r.traffic[0].Variant
}

// Bucket maps the concatenation of testName and entityID to a stable value
// in [0,1). It uses SHA-256 so the result is identical across processes.
func Bucket(testName, entityID string) float64 {
	sum := sha256.Sum256([]byte(testName + "_" + entityID))
	n := binary.BigEndian.Uint64(sum[:8])
	return float64(n%bucketResolution) / bucketResolution
}
