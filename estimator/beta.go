package estimator

import "sync"

// betaCache memoizes the purely-imaginary β vector by projection
// length N: β_k = i·(k − ⌊N/2⌋). Access is read-mostly and a
// concurrent duplicate compute is benign, so a plain sync.Map
// (lock-free reads, locked insert) is enough; no double-checked
// locking needed.
var betaCache sync.Map // int -> []complex128

func beta(n int) []complex128 {
	if v, ok := betaCache.Load(n); ok {
		return v.([]complex128)
	}
	mid := n / 2
	b := make([]complex128, n)
	for k := 0; k < n; k++ {
		b[k] = complex(0, float64(k-mid))
	}
	actual, _ := betaCache.LoadOrStore(n, b)
	return actual.([]complex128)
}
