package engine

import "math"

// PCMLevel returns the RMS amplitude of 16-bit samples in [0, 1].
func PCMLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples))))
}
