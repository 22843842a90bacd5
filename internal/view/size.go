package view

import (
	"math"
	"math/big"
	"strconv"
)

var sizeUnits = [...]string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count with two decimals and the largest unit
// up to GB that keeps the value below 1024: 1536 -> "1.50 KB",
// 1 TiB -> "1024.00 GB". Negative values are not scaled.
func FormatSize(bytes float64) string {
	v := bytes
	unit := 0
	for v >= 1024 && unit < len(sizeUnits)-1 {
		v /= 1024
		unit++
	}
	return toFixed2(v) + " " + sizeUnits[unit]
}

// toFixed2 formats v with exactly two decimals, rounding the exact binary
// value half away from zero (1.125 -> "1.13", 1.005 -> "1.00").
func toFixed2(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	}

	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	// v*100 + 0.5 is exact at this precision; Int truncates, which is
	// floor for non-negative values.
	f := new(big.Float).SetPrec(256).SetFloat64(v)
	f.Mul(f, big.NewFloat(100))
	f.Add(f, big.NewFloat(0.5))
	n, _ := f.Int(nil)

	hundred := big.NewInt(100)
	whole, frac := new(big.Int).QuoRem(n, hundred, new(big.Int))
	if sign == "-" && n.Sign() == 0 {
		// JS keeps the sign of tiny negatives: (-0.001).toFixed(2) == "-0.00".
		return "-0.00"
	}
	fs := strconv.FormatInt(frac.Int64(), 10)
	if len(fs) < 2 {
		fs = "0" + fs
	}
	return sign + whole.String() + "." + fs
}
