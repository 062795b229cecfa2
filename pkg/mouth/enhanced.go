package mouth

import "math"

// Frequency bands (Hz) used to bias the opening. Vowels carry their energy
// in the mid band; fricatives and stops in the high band.
const (
	vowelLowHz      = 250
	vowelHighHz     = 2000
	consonantLowHz  = 2000
	consonantHighHz = 8000
)

// Band dominance ratio and the opening scale applied when one band wins.
const (
	dominanceRatio = 1.5
	consonantScale = 0.7
	vowelScale     = 1.2
)

// EnhancedTracker layers spectral analysis over the base envelope tracker.
// When consonant-band energy dominates, the opening is reduced; when
// vowel-band energy dominates it is boosted, re-clamped to [0,100].
// Same state machine as Tracker, not a separate one.
type EnhancedTracker struct {
	*Tracker
}

// NewEnhanced creates a frequency-weighted tracker.
func NewEnhanced(cfg Config) *EnhancedTracker {
	return &EnhancedTracker{Tracker: New(cfg)}
}

// Process consumes one PCM16 mono chunk and returns the frequency-weighted
// opening and its viseme.
func (t *EnhancedTracker) Process(samples []int16) (float64, Viseme) {
	opening := t.Tracker.Process(samples)

	if len(samples) > 0 {
		mags, freqStep := spectrum(samples, t.cfg.SampleRate)
		vowel := bandEnergy(mags, freqStep, vowelLowHz, vowelHighHz)
		consonant := bandEnergy(mags, freqStep, consonantLowHz, consonantHighHz)

		if consonant > vowel*dominanceRatio {
			opening *= consonantScale
		} else if vowel > consonant*dominanceRatio {
			opening = math.Min(100, opening*vowelScale)
		}
	}

	return opening, VisemeFor(opening)
}

// ProcessBytes consumes a raw little-endian PCM16 buffer.
func (t *EnhancedTracker) ProcessBytes(data []byte) (float64, Viseme) {
	return t.Process(DecodePCM16(data))
}

// spectrum returns the magnitude spectrum of the chunk and the frequency
// resolution per bin. The chunk is zero-padded to the next power of two for
// the radix-2 transform.
func spectrum(samples []int16, sampleRate int) ([]float64, float64) {
	n := 1
	for n < len(samples) {
		n <<= 1
	}

	re := make([]float64, n)
	im := make([]float64, n)
	for i, s := range samples {
		re[i] = float64(s)
	}

	fft(re, im)

	// Real input: only the first half of the spectrum is meaningful.
	mags := make([]float64, n/2+1)
	for i := range mags {
		mags[i] = math.Hypot(re[i], im[i])
	}
	return mags, float64(sampleRate) / float64(n)
}

// bandEnergy is the mean magnitude over bins whose center frequency lies in
// [lo, hi]. Zero if the band contains no bins.
func bandEnergy(mags []float64, freqStep, lo, hi float64) float64 {
	var sum float64
	var count int
	for i, m := range mags {
		f := float64(i) * freqStep
		if f >= lo && f <= hi {
			sum += m
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
// len(re) == len(im) and must be a power of two.
func fft(re, im []float64) {
	n := len(re)
	if n < 2 {
		return
	}

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	for size := 2; size <= n; size <<= 1 {
		ang := -2 * math.Pi / float64(size)
		wRe, wIm := math.Cos(ang), math.Sin(ang)
		for start := 0; start < n; start += size {
			curRe, curIm := 1.0, 0.0
			for k := 0; k < size/2; k++ {
				i, j := start+k, start+k+size/2
				tRe := re[j]*curRe - im[j]*curIm
				tIm := re[j]*curIm + im[j]*curRe
				re[j], im[j] = re[i]-tRe, im[i]-tIm
				re[i], im[i] = re[i]+tRe, im[i]+tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
