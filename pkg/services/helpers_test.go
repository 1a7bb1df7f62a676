package services

import "time"

func ptr[T any](v T) *T {
	return &v
}

func mockNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
