package blockmodel

import "github.com/gilchrisn/overlap-blockmodel/pkg/mathutil"

// eterm is the entropy contribution of mrs edges between blocks r and s.
func eterm(r, s, mrs int, directed bool) float64 {
	if !directed && r == s {
		mrs *= 2
	}
	val := mathutil.XLogX(mrs)
	if directed || r != s {
		return -val
	}
	return -val / 2
}

// vterm is the entropy contribution of a block with degree sums mrp / mrm
// and size wr.
func vterm(mrp, mrm, wr int, degCorr, directed bool) float64 {
	one := 0.5
	if directed {
		one = 1
	}
	if degCorr {
		return one * (mathutil.XLogX(mrm) + mathutil.XLogX(mrp))
	}
	lw := mathutil.SafeLog(float64(wr))
	return one * (float64(mrm)*lw + float64(mrp)*lw)
}
