package signal

import "fmt"

// Level is the coarse signal quality shown to users.
type Level int

const (
	LevelNone Level = iota
	LevelPoor
	LevelFair
	LevelGood
	LevelExcellent
)

// Band thresholds in percent. A band owns its lower bound, see package docs.
const (
	thresholdPoor      = 5.0
	thresholdFair      = 30.0
	thresholdGood      = 50.0
	thresholdExcellent = 70.0
)

const (
	// MinDBm is the floor of the collar receiver scale.
	MinDBm = -130.0

	// saturationDBm is the strength at and above which the vendor client
	// reports a full signal without evaluating the curve.
	saturationDBm = -1.5

	percentScale = 1.35
)

var levelNames = map[Level]string{
	LevelNone:      "none",
	LevelPoor:      "poor",
	LevelFair:      "fair",
	LevelGood:      "good",
	LevelExcellent: "excellent",
}

// String returns the lowercase level name used in logs, JSON and MQTT.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText lets levels appear by name in JSON documents.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (l *Level) UnmarshalText(text []byte) error {
	for level, name := range levelNames {
		if name == string(text) {
			*l = level
			return nil
		}
	}
	return fmt.Errorf("signal: unknown level %q", text)
}

// RawToDBm converts the raw radio byte to dBm. Only the low 8 bits are used.
func RawToDBm(raw int) float64 {
	return float64(raw&0xFF)/2 + MinDBm
}

// DBmToPercent maps a dBm value onto [0, 100].
func DBmToPercent(dbm float64) float64 {
	if dbm >= saturationDBm {
		return 100
	}
	return clamp(100*percentScale*(1-dbm/MinDBm), 0, 100)
}

// PercentToLevel places a percentage into one of the five signal bands.
func PercentToLevel(pct float64) Level {
	switch {
	case pct > thresholdExcellent:
		return LevelExcellent
	case pct >= thresholdGood:
		return LevelGood
	case pct >= thresholdFair:
		return LevelFair
	case pct >= thresholdPoor:
		return LevelPoor
	default:
		return LevelNone
	}
}

// Reading is the fully derived form of one raw signal value.
type Reading struct {
	Raw     int     `json:"raw"`
	DBm     float64 `json:"dbm"`
	Percent float64 `json:"percent"`
	Level   Level   `json:"level"`
}

// Translate runs the whole conversion chain for a raw value.
func Translate(raw int) Reading {
	dbm := RawToDBm(raw)
	pct := DBmToPercent(dbm)
	return Reading{
		Raw:     raw,
		DBm:     dbm,
		Percent: pct,
		Level:   PercentToLevel(pct),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
