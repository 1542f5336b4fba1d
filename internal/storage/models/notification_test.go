package models

import (
	"testing"
	"time"
)

func TestOffsetMinutes(t *testing.T) {
	tests := []struct {
		offset Offset
		want   int
		ok     bool
	}{
		{Offset{15, UnitMinutes}, 15, true},
		{Offset{2, UnitHours}, 120, true},
		{Offset{1, UnitDays}, 1440, true},
		{Offset{1, UnitWeeks}, 10080, true},
		{Offset{1, UnitMonths}, 43200, true},
		{Offset{1, "fortnights"}, 0, false},
		{Offset{121, UnitMonths}, 5227200, true},
		{Offset{122, UnitMonths}, 0, false},
		{Offset{203000, UnitMonths}, 0, false},
		{Offset{MaxOffsetMinutes + 1, UnitMinutes}, 0, false},
		{Offset{-203000, UnitMonths}, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.offset.Minutes()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%+v.Minutes() = %d, %v; want %d, %v", tt.offset, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOffsetValid(t *testing.T) {
	tests := []struct {
		name   string
		offset Offset
		want   bool
	}{
		{"one minute", Offset{1, UnitMinutes}, true},
		{"ten years", Offset{3650, UnitDays}, true},
		{"zero", Offset{0, UnitHours}, false},
		{"negative", Offset{-1, UnitHours}, false},
		{"past ten years", Offset{3651, UnitDays}, false},
		{"would overflow", Offset{203000, UnitMonths}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.offset.Valid(); got != tt.want {
				t.Errorf("%+v.Valid() = %v, want %v", tt.offset, got, tt.want)
			}
		})
	}
}

func TestOffsetFromMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		want    Offset
	}{
		{45, Offset{45, UnitMinutes}},
		{60, Offset{1, UnitHours}},
		{150, Offset{150, UnitMinutes}},
		{180, Offset{3, UnitHours}},
		{1440, Offset{1, UnitDays}},
		{1500, Offset{25, UnitHours}},
		{4320, Offset{3, UnitDays}},
	}
	for _, tt := range tests {
		if got := OffsetFromMinutes(tt.minutes); got != tt.want {
			t.Errorf("OffsetFromMinutes(%d) = %+v, want %+v", tt.minutes, got, tt.want)
		}
	}
}

func TestNotifyTime(t *testing.T) {
	start := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	got := Offset{2, UnitHours}.NotifyTime(start)
	if want := time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("NotifyTime = %v, want %v", got, want)
	}
}

func TestDispatchKeyFor(t *testing.T) {
	uid := int64(7)
	personal := NotificationInstance{EventID: "e", Kind: KindPersonal, UserID: &uid, Offset: Offset{1, UnitDays}}
	key := personal.DispatchKeyFor(3)
	if key.GroupID != nil || key.UserID == nil || *key.UserID != 7 {
		t.Errorf("personal key = %+v", key)
	}

	group := NotificationInstance{EventID: "e", Kind: KindGroup, Offset: Offset{1, UnitDays}}
	key = group.DispatchKeyFor(3)
	if key.UserID != nil || key.GroupID == nil || *key.GroupID != 3 {
		t.Errorf("group key = %+v", key)
	}
}
