package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/muurk/pettracer/internal/devicestate"
)

const placeholder = "-"

func formatName(s *devicestate.Snapshot) string {
	if s.Name == "" {
		return "#" + strconv.Itoa(s.DeviceID)
	}
	return s.Name
}

func formatMode(s *devicestate.Snapshot) string {
	if s.Mode == nil {
		return placeholder
	}
	return s.Mode.Name
}

func formatSignal(s *devicestate.Snapshot) string {
	if s.Signal == nil {
		return placeholder
	}
	return fmt.Sprintf("%s %.0f%%", s.Signal.Level, s.Signal.Percent)
}

func formatBattery(s *devicestate.Snapshot) string {
	if s.Battery == nil {
		return placeholder
	}
	return fmt.Sprintf("%d%% %.2fV", s.Battery.Percent, s.Battery.Voltage)
}

func formatPosition(s *devicestate.Snapshot) string {
	if !s.HasFix() {
		return "no fix"
	}
	return fmt.Sprintf("%.5f,%.5f", *s.Latitude, *s.Longitude)
}

func formatFlag(v *bool) string {
	switch {
	case v == nil:
		return placeholder
	case *v:
		return "on"
	default:
		return "off"
	}
}

// formatAge renders how long ago t was, coarsened for a ticking display.
func formatAge(now, t time.Time) string {
	if t.IsZero() {
		return placeholder
	}
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return t.Format("2006-01-02")
	}
}
