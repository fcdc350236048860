package signal

import "fmt"

// ModeDescriptor describes one collar operating mode.
type ModeDescriptor struct {
	Code int    `json:"code"`
	Name string `json:"name"`
	// PollIntervalSeconds is how often the collar checks in with the base.
	PollIntervalSeconds int `json:"poll_interval_seconds"`
	// PositionIntervalSeconds is how often a GPS fix is taken. Zero means
	// the mode does not take fixes.
	PositionIntervalSeconds int `json:"position_interval_seconds"`
	// Hidden modes are service states the portal never offers for selection.
	Hidden bool `json:"hidden,omitempty"`
}

// Mode codes with behaviour elsewhere in the repo.
const (
	ModeSearch = 11
	ModeOff    = 12
)

// UnknownMode is returned alongside UnknownModeError.
var UnknownMode = ModeDescriptor{Code: -1, Name: "UNKNOWN"}

// modeTable is the full vendor mode table, keyed by code.
var modeTable = buildModeTable([]ModeDescriptor{
	{Code: 1, Name: "FAST", PollIntervalSeconds: 60, PositionIntervalSeconds: 60},
	{Code: 2, Name: "NORMAL", PollIntervalSeconds: 300, PositionIntervalSeconds: 300},
	{Code: 3, Name: "SLOW", PollIntervalSeconds: 900, PositionIntervalSeconds: 900},
	{Code: 4, Name: "FAST_PLUS", PollIntervalSeconds: 30, PositionIntervalSeconds: 30},
	{Code: 5, Name: "NORMAL_PLUS", PollIntervalSeconds: 120, PositionIntervalSeconds: 120},
	{Code: 6, Name: "ENERGY_SAVING", PollIntervalSeconds: 1800, PositionIntervalSeconds: 1800},
	{Code: 7, Name: "LOW_POWER", PollIntervalSeconds: 3600, PositionIntervalSeconds: 3600},
	{Code: 8, Name: "SLEEP", PollIntervalSeconds: 7200},
	{Code: 9, Name: "HOME", PollIntervalSeconds: 600},
	{Code: 10, Name: "LIVE", PollIntervalSeconds: 10, PositionIntervalSeconds: 10},
	{Code: ModeSearch, Name: "SEARCH", PollIntervalSeconds: 21, PositionIntervalSeconds: 21},
	{Code: ModeOff, Name: "OFF"},
	{Code: 13, Name: "DEMO", PollIntervalSeconds: 15, PositionIntervalSeconds: 15, Hidden: true},
	{Code: 14, Name: "TEST", PollIntervalSeconds: 5, PositionIntervalSeconds: 5, Hidden: true},
	{Code: 15, Name: "TRANSPORT", Hidden: true},
	{Code: 16, Name: "CHARGING", PollIntervalSeconds: 300, Hidden: true},
	{Code: 17, Name: "SERVICE", PollIntervalSeconds: 60, Hidden: true},
	{Code: 18, Name: "FIRMWARE_UPDATE", PollIntervalSeconds: 30, Hidden: true},
	{Code: 19, Name: "FACTORY", Hidden: true},
})

func buildModeTable(entries []ModeDescriptor) map[int]ModeDescriptor {
	table := make(map[int]ModeDescriptor, len(entries))
	for _, e := range entries {
		if _, dup := table[e.Code]; dup {
			panic(fmt.Sprintf("signal: duplicate mode code %d", e.Code))
		}
		table[e.Code] = e
	}
	return table
}

// ModeCodeToDescriptor looks a mode code up. For unknown codes it returns
// UnknownMode (with Code set to the input) and an *UnknownModeError.
func ModeCodeToDescriptor(code int) (ModeDescriptor, error) {
	if d, ok := modeTable[code]; ok {
		return d, nil
	}
	d := UnknownMode
	d.Code = code
	return d, &UnknownModeError{Code: code}
}

// Modes returns a copy of the mode table.
func Modes() map[int]ModeDescriptor {
	out := make(map[int]ModeDescriptor, len(modeTable))
	for k, v := range modeTable {
		out[k] = v
	}
	return out
}

// String returns a compact representation for logs.
func (d ModeDescriptor) String() string {
	return fmt.Sprintf("%s(%d, poll=%ds, pos=%ds)", d.Name, d.Code, d.PollIntervalSeconds, d.PositionIntervalSeconds)
}
