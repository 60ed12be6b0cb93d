package gamification

import "math"

// LevelFor returns floor(sqrt(total/100)) + 1. Totals below zero are level 1.
func LevelFor(total int64) int {
	if total <= 0 {
		return 1
	}
	return int(isqrt(total/100)) + 1
}

// PointsForLevel is the minimum total that reaches level.
func PointsForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	n := int64(level - 1)
	return n * n * 100
}

type LevelProgress struct {
	Level             int     `json:"level"`
	CurrentLevelStart int64   `json:"currentLevelPoints"`
	NextLevelAt       int64   `json:"nextLevelPoints"`
	Progress          float64 `json:"progress"`
}

func ProgressFor(total int64) LevelProgress {
	level := LevelFor(total)
	start := PointsForLevel(level)
	next := PointsForLevel(level + 1)
	p := LevelProgress{Level: level, CurrentLevelStart: start, NextLevelAt: next}
	if span := next - start; span > 0 && total > start {
		p.Progress = float64(total-start) / float64(span)
	}
	return p
}

// isqrt is floor(sqrt(n)) without float rounding at perfect squares.
func isqrt(n int64) int64 {
	if n <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return r
}
