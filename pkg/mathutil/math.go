// Package mathutil provides small numeric helpers shared across handlers.
package mathutil

// ClampInt clamps value to the inclusive range [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampLimit normalizes a pagination limit. Non-positive values fall back
// to defaultVal, values above maxVal are capped at maxVal.
func ClampLimit(limit, defaultVal, maxVal int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > maxVal {
		return maxVal
	}
	return limit
}
