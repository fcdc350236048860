package devicestate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/signal"
	"go.uber.org/zap"
)

// DefaultHistoryLimit is the number of fiFo entries kept per device.
const DefaultHistoryLimit = 10

// Notifier is called once per applied update with a copy of the result.
type Notifier func(deviceID int, snapshot *Snapshot)

// Reconciler applies device-update payloads to a Table.
type Reconciler struct {
	table        *Table
	notify       Notifier
	historyLimit int
	now          func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier sets the change notification callback.
func WithNotifier(fn Notifier) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// WithHistoryLimit bounds the per-device history. Values below 1 keep the
// default.
func WithHistoryLimit(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithClock replaces time.Now for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler returns a reconciler writing to table.
func NewReconciler(table *Table, opts ...Option) *Reconciler {
	r := &Reconciler{
		table:        table,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the table this reconciler writes to.
func (r *Reconciler) Table() *Table {
	return r.table
}

// ApplyBody applies a MESSAGE body, which is either one device object or an
// array of them. Each element stands alone: a bad element is reported in the
// joined error and the others are still applied.
func (r *Reconciler) ApplyBody(body []byte) ([]*Snapshot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		s, err := r.ApplyUpdate(trimmed)
		if err != nil {
			return nil, err
		}
		return []*Snapshot{s}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, newReconcileError(0, trimmed, err, "invalid payload array")
	}

	applied := make([]*Snapshot, 0, len(elements))
	var errs []error
	for _, element := range elements {
		s, err := r.ApplyUpdate(element)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		applied = append(applied, s)
	}
	return applied, errors.Join(errs...)
}

// ApplyUpdate merges one device object into its snapshot and notifies once.
func (r *Reconciler) ApplyUpdate(payload []byte) (*Snapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		if err == nil {
			err = fmt.Errorf("payload is null")
		}
		return nil, newReconcileError(0, payload, err, "payload is not a JSON object")
	}

	rawID, ok := present(fields, "id")
	if !ok {
		return nil, newReconcileError(0, payload, nil, "missing device id")
	}
	deviceID, err := decodeInt(rawID)
	if err != nil {
		return nil, newReconcileError(0, payload, err, "device id %s is not an integer", string(rawID))
	}

	updatedAt := r.now()
	snapshot := r.table.modify(deviceID, func(s *Snapshot) {
		r.merge(s, fields)
		s.UpdatedAt = updatedAt
	})

	if r.notify != nil {
		r.notify(deviceID, snapshot)
	}
	return snapshot, nil
}

// merge writes every field present in the payload. Fields of the wrong
// type are logged and left untouched.
func (r *Reconciler) merge(s *Snapshot, fields map[string]json.RawMessage) {
	skip := func(field string, err error) {
		logging.Warn("Skipping malformed device field",
			zap.Int("device_id", s.DeviceID),
			zap.String("field", field),
			zap.Error(err),
		)
	}

	if raw, ok := present(fields, "details"); ok {
		var details struct {
			Name *string `json:"name"`
		}
		if err := json.Unmarshal(raw, &details); err != nil {
			skip("details", err)
		} else if details.Name != nil {
			s.Name = *details.Name
		}
	}

	if raw, ok := present(fields, "lastPos"); ok {
		if err := mergePosition(s, raw); err != nil {
			skip("lastPos", err)
		}
	}

	if raw, ok := present(fields, "lastRssi"); ok {
		if v, err := decodeInt(raw); err != nil {
			skip("lastRssi", err)
		} else {
			reading := signal.Translate(v)
			s.Signal = &reading
		}
	}

	if raw, ok := present(fields, "accuWarn"); ok {
		if v, err := decodeInt(raw); err != nil {
			skip("accuWarn", err)
		} else {
			battery := signal.TranslateBattery(v)
			s.Battery = &battery
		}
	}

	if raw, ok := present(fields, "mode"); ok {
		if v, err := decodeInt(raw); err != nil {
			skip("mode", err)
		} else {
			mode, err := signal.ModeCodeToDescriptor(v)
			if err != nil {
				logging.Warn("Unknown mode code",
					zap.Int("device_id", s.DeviceID),
					zap.Int("mode", v),
					zap.Error(err),
				)
			}
			s.Mode = &mode
		}
	}

	if raw, ok := present(fields, "led"); ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			skip("led", err)
		} else {
			s.LED = &v
		}
	}

	if raw, ok := present(fields, "buzzer"); ok {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			skip("buzzer", err)
		} else {
			s.Buzzer = &v
		}
	}

	if raw, ok := present(fields, "lastContact"); ok {
		s.LastContact = decodeText(raw)
	}

	if raw, ok := present(fields, "fiFo"); ok {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			skip("fiFo", err)
		} else {
			s.History = mergeHistory(entries, s.History, r.historyLimit)
		}
	}
}

func mergePosition(s *Snapshot, raw json.RawMessage) error {
	var pos struct {
		Lat    *float64        `json:"posLat"`
		Long   *float64        `json:"posLong"`
		TimeDB json.RawMessage `json:"timeDb"`
	}
	if err := json.Unmarshal(raw, &pos); err != nil {
		return err
	}
	if pos.Lat != nil {
		s.Latitude = pos.Lat
	}
	if pos.Long != nil {
		s.Longitude = pos.Long
	}
	if len(pos.TimeDB) > 0 && string(pos.TimeDB) != "null" {
		s.PositionTime = decodeText(pos.TimeDB)
	}
	return nil
}

// mergeHistory puts incoming entries first, then existing entries not
// already among them, truncated to limit.
func mergeHistory(incoming, existing []json.RawMessage, limit int) []json.RawMessage {
	seen := make(map[string]bool, len(incoming))
	merged := make([]json.RawMessage, 0, len(incoming)+len(existing))

	add := func(entry json.RawMessage) {
		key := historyKey(entry)
		if seen[key] {
			return
		}
		seen[key] = true
		merged = append(merged, append(json.RawMessage(nil), entry...))
	}
	for _, e := range incoming {
		add(e)
	}
	for _, e := range existing {
		add(e)
	}

	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// historyKey identifies a history entry by its "id" when it has one and by
// its compacted JSON otherwise.
func historyKey(entry json.RawMessage) string {
	var withID struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(entry, &withID); err == nil && len(withID.ID) > 0 && string(withID.ID) != "null" {
		return "id:" + string(withID.ID)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, entry); err != nil {
		return "raw:" + string(entry)
	}
	return "json:" + buf.String()
}

// present returns a field unless it is absent or null.
func present(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// maxExactInt is the largest integer a float64 holds exactly.
const maxExactInt = 1 << 53

// decodeInt accepts any JSON number with an integral value.
func decodeInt(raw json.RawMessage) (int, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return 0, fmt.Errorf("%s is not an integer", string(raw))
	}
	return int(f), nil
}

// decodeText returns a JSON string's value, or the raw literal for other
// types.
func decodeText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
