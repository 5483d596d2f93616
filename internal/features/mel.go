package features

import "math"

// hammingWindow generates a Hamming window of the given length.
func hammingWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts a mel-scale value back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterbank builds numMels triangular filters over the FFT power
// spectrum. Boundary points are equally spaced in mel space over
// [0, hzToMel(nyquist)], mapped back to Hz, then to FFT bin indices with
// floor((nfft+1)*hz/sampleRate) clamped to [0, nfft/2]. Filter i ramps
// 0→1 over [bin_i, bin_{i+1}] and 1→0 over [bin_{i+1}, bin_{i+2}].
// Returns [numMels][nfft/2+1].
func melFilterbank(numMels, fftSize, sampleRate int) [][]float64 {
	halfFFT := fftSize/2 + 1
	nyquist := float64(sampleRate) / 2.0
	melMax := hzToMel(nyquist)

	bins := make([]int, numMels+2)
	for i := range bins {
		mel := float64(i) * melMax / float64(numMels+1)
		hz := melToHz(mel)
		bin := int(math.Floor(float64(fftSize+1) * hz / float64(sampleRate)))
		if bin > fftSize/2 {
			bin = fftSize / 2
		}
		bins[i] = bin
	}

	bank := make([][]float64, numMels)
	for m := 0; m < numMels; m++ {
		filter := make([]float64, halfFFT)
		start := bins[m]
		center := bins[m+1]
		end := bins[m+2]

		for k := start; k < center; k++ {
			filter[k] = float64(k-start) / float64(center-start)
		}
		for k := center; k < end; k++ {
			filter[k] = float64(end-k) / float64(end-center)
		}
		bank[m] = filter
	}
	return bank
}
