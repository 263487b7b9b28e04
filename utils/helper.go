package utils

func FloatPtr(v float64) *float64 {
	return &v
}
