package signal

import (
	"fmt"
	"math"
)

// BatteryStatus summarises the charge state for display and automations.
type BatteryStatus int

const (
	BatteryCritical BatteryStatus = iota
	BatteryLow
	BatteryNormal
	BatteryFull
)

// Cell voltage window in millivolts.
const (
	BatteryEmptyMillivolts = 3000
	BatteryFullMillivolts  = 4150
)

// String returns the lowercase status name.
func (s BatteryStatus) String() string {
	switch s {
	case BatteryCritical:
		return "critical"
	case BatteryLow:
		return "low"
	case BatteryNormal:
		return "normal"
	case BatteryFull:
		return "full"
	default:
		return fmt.Sprintf("BatteryStatus(%d)", int(s))
	}
}

// MarshalText lets statuses appear by name in JSON documents.
func (s BatteryStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *BatteryStatus) UnmarshalText(text []byte) error {
	for _, status := range []BatteryStatus{BatteryCritical, BatteryLow, BatteryNormal, BatteryFull} {
		if status.String() == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("signal: unknown battery status %q", text)
}

// curveSegment is one linear piece of the discharge curve: voltages at or
// above FromMV map onto Base..Base+Span percent across Width millivolts.
// The segments join up, so the curve is continuous from 3600 mV to full.
type curveSegment struct {
	FromMV int
	Width  float64
	Span   float64
	Base   float64
}

// dischargeCurve is ordered from the highest segment down.
var dischargeCurve = []curveSegment{
	{FromMV: 4000, Width: 150, Span: 17, Base: 83},
	{FromMV: 3900, Width: 100, Span: 16, Base: 67},
	{FromMV: 3840, Width: 60, Span: 17, Base: 50},
	{FromMV: 3760, Width: 80, Span: 16, Base: 34},
	{FromMV: 3600, Width: 160, Span: 17, Base: 17},
}

// BatteryPercent converts a cell voltage in millivolts to a rounded charge
// percentage. Input outside the cell window is clamped first.
func BatteryPercent(millivolts int) int {
	mv := millivolts
	if mv < BatteryEmptyMillivolts {
		mv = BatteryEmptyMillivolts
	}
	if mv > BatteryFullMillivolts {
		mv = BatteryFullMillivolts
	}

	for _, seg := range dischargeCurve {
		if mv < seg.FromMV {
			continue
		}
		pct := float64(mv-seg.FromMV)/seg.Width*seg.Span + seg.Base
		return int(math.Round(pct))
	}
	// below the knee the cell is treated as empty
	return 0
}

// StatusForPercent classifies a charge percentage.
func StatusForPercent(pct int) BatteryStatus {
	switch {
	case pct <= 10:
		return BatteryCritical
	case pct <= 25:
		return BatteryLow
	case pct >= 95:
		return BatteryFull
	default:
		return BatteryNormal
	}
}

// Battery is the derived form of one accuWarn value.
type Battery struct {
	Millivolts int           `json:"millivolts"`
	Voltage    float64       `json:"voltage"`
	Percent    int           `json:"percent"`
	Status     BatteryStatus `json:"status"`
}

// TranslateBattery derives percentage, voltage and status from millivolts.
func TranslateBattery(millivolts int) Battery {
	pct := BatteryPercent(millivolts)
	return Battery{
		Millivolts: millivolts,
		Voltage:    float64(millivolts) / 1000,
		Percent:    pct,
		Status:     StatusForPercent(pct),
	}
}
