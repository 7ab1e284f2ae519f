package utils

import (
	"math"
	"strconv"
)

// Int64ToStr converts an int64 to its string representation.
func Int64ToStr(num int64) string {
	return strconv.FormatInt(num, 10)
}

// StrToInt64 converts a string to an int64.
func StrToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// RoundTo rounds v half away from zero to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// RoundMoney rounds an amount to cents.
func RoundMoney(v float64) float64 {
	return RoundTo(v, 2)
}

// RoundQuantity rounds a quantity to three decimal places, the precision kept for split lines.
func RoundQuantity(v float64) float64 {
	return RoundTo(v, 3)
}
