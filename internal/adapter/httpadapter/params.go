package httpadapter

import (
	"fmt"
	"math"
	"strconv"
)

// parseCoordinate parses a decimal degree bounded by ±limit.
func parseCoordinate(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("coordinate %v out of range", v)
	}
	return v, nil
}
