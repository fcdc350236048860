package devicestate

import (
	"encoding/json"
	"time"

	"github.com/muurk/pettracer/internal/signal"
)

// Snapshot is the current known state of one device. Nil pointers mean the
// value has never been reported.
type Snapshot struct {
	DeviceID int    `json:"id"`
	Name     string `json:"name,omitempty"`

	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	PositionTime string   `json:"position_time,omitempty"`

	Signal  *signal.Reading        `json:"signal,omitempty"`
	Battery *signal.Battery        `json:"battery,omitempty"`
	Mode    *signal.ModeDescriptor `json:"mode,omitempty"`

	LED         *bool  `json:"led,omitempty"`
	Buzzer      *bool  `json:"buzzer,omitempty"`
	LastContact string `json:"last_contact,omitempty"`

	// History holds raw fiFo entries, most recent first.
	History []json.RawMessage `json:"history,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasFix reports whether both coordinates are known.
func (s *Snapshot) HasFix() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Latitude = clonePtr(s.Latitude)
	c.Longitude = clonePtr(s.Longitude)
	c.Signal = clonePtr(s.Signal)
	c.Battery = clonePtr(s.Battery)
	c.Mode = clonePtr(s.Mode)
	c.LED = clonePtr(s.LED)
	c.Buzzer = clonePtr(s.Buzzer)
	if s.History != nil {
		c.History = make([]json.RawMessage, len(s.History))
		for i, entry := range s.History {
			c.History[i] = append(json.RawMessage(nil), entry...)
		}
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
