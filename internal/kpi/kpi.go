// Package kpi computes weekly execution metrics over canonical tasks.
package kpi

import (
	"sort"
	"time"

	"github.com/and161185/taskpulse/internal/model"
)

const day = 24 * time.Hour

// WeekStart returns the most recent Monday 00:00 UTC not after ref.
func WeekStart(ref time.Time) time.Time {
	ref = ref.UTC()
	midnight := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(midnight.Weekday()) + 6) % 7 // Monday=0
	return midnight.AddDate(0, 0, -offset)
}

// Compute builds the weekly snapshot for tasks in the week containing weekRef.
// now decides overdue tasks.
func Compute(tasks []model.Task, weekRef, now time.Time) model.WeeklySnapshot {
	start := WeekStart(weekRef)
	end := start.Add(7 * day)

	s := model.WeeklySnapshot{
		WeekStart:      start,
		FocusBreakdown: map[string]int{},
		ComputedAt:     now.UTC(),
	}

	var (
		onTime int
		cycles []float64
	)
	for i := range tasks {
		t := &tasks[i]

		if t.CompletedAt == nil {
			if !t.Archived {
				s.WIPCount++
			}
			if t.DueAt != nil && t.DueAt.Before(now) {
				s.OverdueOpen++
			}
			continue
		}

		done := *t.CompletedAt
		if done.Before(start) || !done.Before(end) {
			continue
		}
		s.CompletedTasks++
		if t.DueAt == nil || !done.After(*t.DueAt) {
			onTime++
		}
		if t.CreatedAt != nil {
			// Negative durations come from malformed timestamps.
			if d := done.Sub(*t.CreatedAt); d >= 0 {
				cycles = append(cycles, d.Hours()/24)
			}
		}
		for _, tag := range t.Tags {
			s.FocusBreakdown[tag]++
		}
	}

	if s.CompletedTasks > 0 {
		s.OnTimeRate = float64(onTime) / float64(s.CompletedTasks)
	}
	s.MedianCycleTimeDays = Median(cycles)
	return s
}

// Median returns the element at index floor(n/2) of the sorted values, or nil when empty.
func Median(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	m := sorted[len(sorted)/2]
	return &m
}
