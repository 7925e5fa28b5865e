package mathutil

import (
	"math"
	"sync"
)

// QCacheSize bounds the exact table of log q(n, k). Larger arguments fall
// back to LogQApprox.
const QCacheSize = 1000

var (
	qOnce  sync.Once
	qCache [][]float64 // qCache[n][k] = log q(n, k), 1 <= k <= n
)

func initQCache() {
	qCache = make([][]float64, QCacheSize+1)
	qCache[0] = []float64{0}
	for n := 1; n <= QCacheSize; n++ {
		row := make([]float64, n+1)
		row[0] = math.Inf(-1)
		for k := 1; k <= n; k++ {
			// q(n, k) = q(n, k-1) + q(n-k, k)
			a := row[k-1]
			b := lookupQ(n-k, k)
			row[k] = logAddExp(a, b)
		}
		qCache[n] = row
	}
}

func lookupQ(n, k int) float64 {
	if n == 0 {
		return 0
	}
	if k > n {
		k = n
	}
	return qCache[n][k]
}

func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// LogQ returns the log of q(n, k), the number of partitions of the integer
// n into at most k parts. It is exact for n <= QCacheSize.
func LogQ(n, k int) float64 {
	if n <= 0 {
		return 0
	}
	if k <= 0 {
		return math.Inf(-1)
	}
	if k > n {
		k = n
	}
	if n > QCacheSize {
		return LogQApprox(n, k)
	}
	qOnce.Do(initQCache)
	return qCache[n][k]
}

// LogQApprox approximates log q(n, k): for small k by the leading
// composition count, otherwise by the Hardy–Ramanujan asymptotic corrected
// for the bounded number of parts.
func LogQApprox(n, k int) float64 {
	if n <= 0 {
		return 0
	}
	if k <= 0 {
		return math.Inf(-1)
	}
	if k > n {
		k = n
	}
	if float64(k) < math.Pow(float64(n), 0.25) {
		return logQApproxSmall(n, k)
	}
	return logQApproxBig(n, k)
}

func logQApproxSmall(n, k int) float64 {
	return LBinom(float64(n-1), float64(k-1)) - LFactorial(k)
}

func logQApproxBig(n, k int) float64 {
	c := math.Pi * math.Sqrt(2.0/3.0)
	fn := float64(n)
	s := c*math.Sqrt(fn) - math.Log(4*math.Sqrt(3)*fn)
	if k < n {
		x := float64(k)/math.Sqrt(fn) - math.Log(fn)/c
		s -= (2 / c) * math.Exp(-c*x/2)
	}
	return s
}

// Xi returns the log-number of degree sequences with total m spread over n
// nodes, log q(m, n).
func Xi(n, m int) float64 {
	if n == 0 || m == 0 {
		return 0
	}
	return LogQ(m, n)
}

// XiFast is Xi using the asymptotic approximation only.
func XiFast(n, m int) float64 {
	if n == 0 || m == 0 {
		return 0
	}
	return LogQApprox(m, n)
}
