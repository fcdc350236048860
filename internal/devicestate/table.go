package devicestate

import (
	"sort"
	"sync"
)

// Table is the shared snapshot store. It outlives individual connections.
type Table struct {
	mu      sync.RWMutex
	devices map[int]*Snapshot
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{devices: make(map[int]*Snapshot)}
}

// Get returns a copy of one snapshot.
func (t *Table) Get(deviceID int) (*Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.devices[deviceID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// List returns copies of all snapshots ordered by device id.
func (t *Table) List() []*Snapshot {
	t.mu.RLock()
	out := make([]*Snapshot, 0, len(t.devices))
	for _, s := range t.devices {
		out = append(out, s.Clone())
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Len returns the number of devices in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.devices)
}

// Delete removes a device. It reports whether the device was present.
func (t *Table) Delete(deviceID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.devices[deviceID]
	delete(t.devices, deviceID)
	return ok
}

// Retain removes every device not in keep and returns the removed ids.
func (t *Table) Retain(keep []int) []int {
	wanted := make(map[int]bool, len(keep))
	for _, id := range keep {
		wanted[id] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []int
	for id := range t.devices {
		if !wanted[id] {
			delete(t.devices, id)
			removed = append(removed, id)
		}
	}
	sort.Ints(removed)
	return removed
}

// modify runs fn on the stored snapshot for deviceID, creating it first if
// needed, and returns a copy of the result.
func (t *Table) modify(deviceID int, fn func(*Snapshot)) *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.devices[deviceID]
	if !ok {
		s = &Snapshot{DeviceID: deviceID}
		t.devices[deviceID] = s
	}
	fn(s)
	return s.Clone()
}
