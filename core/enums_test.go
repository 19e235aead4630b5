package core

import "testing"

func TestTransportModeFaster(t *testing.T) {
	order := []TransportMode{TransportWalking, TransportPublicTransit, TransportTaxi, TransportDriving}
	for i := 0; i < len(order)-1; i++ {
		got, ok := order[i].Faster()
		if !ok || got != order[i+1] {
			t.Errorf("%s.Faster() = %s, %v; want %s, true", order[i], got, ok, order[i+1])
		}
		if order[i].SpeedKmh() >= got.SpeedKmh() {
			t.Errorf("%s is not slower than %s", order[i], got)
		}
	}
	if _, ok := TransportDriving.Faster(); ok {
		t.Error("driving should have no faster mode")
	}
}

func TestPacePerDayRange(t *testing.T) {
	tests := []struct {
		pace     Pace
		min, max int
	}{
		{PaceRelaxed, 1, 3},
		{PaceModerate, 3, 5},
		{PaceIntensive, 5, 8},
	}
	for _, tt := range tests {
		min, max := tt.pace.PerDayRange()
		if min != tt.min || max != tt.max {
			t.Errorf("%s.PerDayRange() = %d, %d; want %d, %d", tt.pace, min, max, tt.min, tt.max)
		}
	}
}

func TestSlotForHour(t *testing.T) {
	tests := []struct {
		hour float64
		want TimeSlot
	}{
		{9.0, SlotMorning},
		{12.0, SlotLunch},
		{15.0, SlotAfternoon},
		{18.0, SlotDinner},
		{20.5, SlotEvening},
	}
	for _, tt := range tests {
		if got := SlotForHour(tt.hour); got != tt.want {
			t.Errorf("SlotForHour(%v) = %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestSeverityWeightOrdering(t *testing.T) {
	if !(SeverityHigh.Weight() > SeverityMedium.Weight() && SeverityMedium.Weight() > SeverityLow.Weight()) {
		t.Error("severity weights are not strictly ordered")
	}
	if Severity("").Weight() != 0 {
		t.Error("unknown severity should weigh zero")
	}
}

func TestValidRejectsUnknownValues(t *testing.T) {
	if TransportMode("teleport").Valid() {
		t.Error("unknown transport mode accepted")
	}
	if Pace("frantic").Valid() {
		t.Error("unknown pace accepted")
	}
}
