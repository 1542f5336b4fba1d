package models

import (
	"testing"
	"time"
)

func TestHorizonEnd(t *testing.T) {
	berlin := time.FixedZone("CET", 3600)
	tmpl := &Template{
		BaseTime:            time.Date(2024, 1, 30, 19, 0, 45, 0, berlin),
		PlanningHorizonDays: 30,
	}

	got := tmpl.HorizonEnd()
	want := time.Date(2024, 2, 29, 19, 0, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("HorizonEnd = %v, want %v", got, want)
	}

	tmpl.PlanningHorizonDays = 0
	if got := tmpl.HorizonEnd(); !got.Equal(time.Date(2024, 1, 30, 19, 0, 0, 0, time.UTC)) {
		t.Errorf("zero horizon = %v", got)
	}
}
