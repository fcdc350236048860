// Package tracker is the control surface of the live channel: start, stop,
// change the tracked devices, read snapshots and listen for changes.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/logging"
	"github.com/muurk/pettracer/internal/protocol"
	"github.com/muurk/pettracer/internal/session"
	"go.uber.org/zap"
)

// DeviceListener is called once per applied device update.
type DeviceListener func(deviceID int, snapshot *devicestate.Snapshot)

// StateListener is called on every connection state transition.
type StateListener func(state session.State)

// Options configures a Client.
type Options struct {
	Channel      channel.Config
	HistoryLimit int
	// Clock replaces time.Now for snapshot timestamps.
	Clock func() time.Time
}

// Client ties the supervisor, the reconciler and the listeners together.
type Client struct {
	table      *devicestate.Table
	reconciler *devicestate.Reconciler
	supervisor *channel.Supervisor

	mu             sync.RWMutex
	nextListener   int
	deviceListener map[int]DeviceListener
	stateListener  map[int]StateListener
}

// New builds a stopped client.
func New(opts Options) *Client {
	c := &Client{
		table:          devicestate.NewTable(),
		deviceListener: make(map[int]DeviceListener),
		stateListener:  make(map[int]StateListener),
	}

	recOpts := []devicestate.Option{
		devicestate.WithNotifier(c.notifyDevice),
		devicestate.WithHistoryLimit(opts.HistoryLimit),
	}
	if opts.Clock != nil {
		recOpts = append(recOpts, devicestate.WithClock(opts.Clock))
	}
	c.reconciler = devicestate.NewReconciler(c.table, recOpts...)
	c.supervisor = channel.NewSupervisor(opts.Channel, c.handleMessage, c.notifyState)
	return c
}

// Start connects in the background.
func (c *Client) Start(ctx context.Context, token string, deviceIDs []int) error {
	return c.supervisor.Start(ctx, token, deviceIDs)
}

// Stop disconnects and suppresses reconnects. Snapshots are kept.
func (c *Client) Stop() {
	c.supervisor.Stop()
}

// UpdateDeviceIDs replaces the tracked set. Snapshots of removed devices are
// deleted.
func (c *Client) UpdateDeviceIDs(deviceIDs []int) error {
	removed, err := c.supervisor.UpdateDeviceIDs(deviceIDs)
	for _, id := range removed {
		c.table.Delete(id)
	}
	if err != nil {
		return fmt.Errorf("update device ids: %w", err)
	}
	return nil
}

// RemoveDevice stops tracking one device and deletes its snapshot. It
// reports whether the device was tracked or known.
func (c *Client) RemoveDevice(deviceID int) (bool, error) {
	current := c.supervisor.DeviceIDs()
	next := make([]int, 0, len(current))
	tracked := false
	for _, id := range current {
		if id == deviceID {
			tracked = true
			continue
		}
		next = append(next, id)
	}

	var err error
	if tracked {
		err = c.UpdateDeviceIDs(next)
	}
	known := c.table.Delete(deviceID)
	return tracked || known, err
}

// DeviceIDs returns the tracked set.
func (c *Client) DeviceIDs() []int {
	return c.supervisor.DeviceIDs()
}

// Device returns a copy of one snapshot.
func (c *Client) Device(deviceID int) (*devicestate.Snapshot, bool) {
	return c.table.Get(deviceID)
}

// Devices returns copies of all snapshots ordered by id.
func (c *Client) Devices() []*devicestate.Snapshot {
	return c.table.List()
}

// State returns the connection state.
func (c *Client) State() session.State {
	return c.supervisor.State()
}

// Status returns the supervisor status.
func (c *Client) Status() channel.Status {
	return c.supervisor.Status()
}

// OnDeviceUpdated registers fn and returns a function that removes it.
func (c *Client) OnDeviceUpdated(fn DeviceListener) (remove func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.deviceListener[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.deviceListener, id)
		c.mu.Unlock()
	}
}

// OnConnectionStateChanged registers fn and returns a function that
// removes it.
func (c *Client) OnConnectionStateChanged(fn StateListener) (remove func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.stateListener[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateListener, id)
		c.mu.Unlock()
	}
}

func (c *Client) handleMessage(sub session.Subscription, frame *protocol.Frame) {
	applied, err := c.reconciler.ApplyBody([]byte(frame.Body))
	if err != nil {
		logging.Warn("Skipping device update",
			zap.String("subscription", sub.ID),
			zap.String("destination", frame.Destination()),
			zap.Error(err),
		)
	}
	if len(applied) > 0 {
		logging.Debug("Applied device updates",
			zap.String("destination", frame.Destination()),
			zap.Int("count", len(applied)),
		)
	}
}

func (c *Client) notifyDevice(deviceID int, snapshot *devicestate.Snapshot) {
	for _, fn := range c.deviceListeners() {
		// each listener gets its own copy
		safeCall("device", func() { fn(deviceID, snapshot.Clone()) })
	}
}

func (c *Client) notifyState(state session.State) {
	for _, fn := range c.stateListeners() {
		safeCall("state", func() { fn(state) })
	}
}

func (c *Client) deviceListeners() []DeviceListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.deviceListener))
	for id := range c.deviceListener {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]DeviceListener, len(ids))
	for i, id := range ids {
		out[i] = c.deviceListener[id]
	}
	return out
}

func (c *Client) stateListeners() []StateListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.stateListener))
	for id := range c.stateListener {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]StateListener, len(ids))
	for i, id := range ids {
		out[i] = c.stateListener[id]
	}
	return out
}

// safeCall keeps a panicking listener from taking down the receive loop.
func safeCall(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("Listener panicked",
				zap.String("listener", kind),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}
