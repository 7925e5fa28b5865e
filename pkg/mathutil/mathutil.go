package mathutil

import (
	"math"

	"gonum.org/v1/gonum/stat/combin"
)

// XLogX returns x*ln(x), with 0*ln(0) = 0.
func XLogX(x int) float64 {
	if x <= 0 {
		return 0
	}
	fx := float64(x)
	return fx * math.Log(fx)
}

// SafeLog returns ln(x), or 0 when x is 0.
func SafeLog(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Log(x)
}

// LGamma returns ln Γ(x).
func LGamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// LFactorial returns ln(n!).
func LFactorial(n int) float64 {
	if n < 2 {
		return 0
	}
	return LGamma(float64(n) + 1)
}

// LBinom returns the log of the binomial coefficient (n k). Degenerate
// arguments (n == 0, k == 0, k >= n) yield 0.
func LBinom(n, k float64) float64 {
	if n == 0 || k == 0 || k >= n {
		return 0
	}
	return combin.LogGeneralizedBinomial(n, k)
}

// LMultiset returns the log of the multiset coefficient ((n k)), the number
// of ways to choose k items out of n kinds with repetition.
func LMultiset(n, k int) float64 {
	if n == 0 || k == 0 {
		return 0
	}
	return LBinom(float64(n+k-1), float64(k))
}

// LBinomCareful is LBinom for very large, non-integer n, where the
// difference of log-gamma terms would lose all precision.
func LBinomCareful(n, k float64) float64 {
	if n == 0 || k == 0 || k >= n {
		return 0
	}
	lgN := LGamma(n + 1)
	lgk := LGamma(k + 1)
	if lgN-lgk > 1e8 {
		// n >> k: Stirling for ln n! and ln (n-k)!
		return -n*math.Log1p(-k/n) - k*math.Log1p(-k/n) - k - lgk + k*math.Log(n)
	}
	return lgN - lgk - LGamma(n-k+1)
}
