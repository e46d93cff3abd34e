package service

import (
	"math"
	"time"
)

func GetExpiresAt(expiresIn int64) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}

// Round2 rounds a credit amount to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
