package ui

import (
	"context"
	"time"

	"github.com/muurk/pettracer/internal/api"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/session"
	"github.com/muurk/pettracer/internal/tracker"
)

// ConnStatus is the connection summary shown in the dashboard banner.
type ConnStatus struct {
	State       string
	Retries     int
	NextBackoff time.Duration
	DeviceIDs   []int
	LastError   string
	LiveSince   time.Time
}

// View is one refresh worth of dashboard data.
type View struct {
	Status  ConnStatus
	Devices []*devicestate.Snapshot
}

// Source supplies dashboard data.
type Source interface {
	Fetch(ctx context.Context) (View, error)
	// Describe names the source in the banner.
	Describe() string
}

// Notifier is implemented by sources that can push change notifications.
type Notifier interface {
	Subscribe(fn func()) (remove func())
}

// LocalBackend is the in-process tracker surface the dashboard reads.
type LocalBackend interface {
	Status() channel.Status
	Devices() []*devicestate.Snapshot
	OnDeviceUpdated(fn tracker.DeviceListener) (remove func())
	OnConnectionStateChanged(fn tracker.StateListener) (remove func())
}

// LocalSource reads an in-process tracker.
type LocalSource struct {
	Backend LocalBackend
}

func (s LocalSource) Fetch(context.Context) (View, error) {
	st := s.Backend.Status()
	return View{
		Status: ConnStatus{
			State:       st.State.String(),
			Retries:     st.Retries,
			NextBackoff: st.NextBackoff,
			DeviceIDs:   st.DeviceIDs,
			LastError:   st.LastError,
			LiveSince:   st.LiveSince,
		},
		Devices: s.Backend.Devices(),
	}, nil
}

func (s LocalSource) Describe() string { return "in-process" }

// Subscribe calls fn after every device update and state change.
func (s LocalSource) Subscribe(fn func()) (remove func()) {
	removeDevice := s.Backend.OnDeviceUpdated(func(int, *devicestate.Snapshot) { fn() })
	removeState := s.Backend.OnConnectionStateChanged(func(session.State) { fn() })
	return func() {
		removeDevice()
		removeState()
	}
}

// RemoteSource polls a query API.
type RemoteSource struct {
	Client *api.Client
}

func (s RemoteSource) Fetch(ctx context.Context) (View, error) {
	st, err := s.Client.Status(ctx)
	if err != nil {
		return View{}, err
	}
	devices, err := s.Client.Devices(ctx)
	if err != nil {
		return View{}, err
	}
	status := ConnStatus{
		State:       st.State,
		Retries:     st.Retries,
		NextBackoff: time.Duration(st.NextBackoffSeconds * float64(time.Second)),
		DeviceIDs:   st.DeviceIDs,
		LastError:   st.LastError,
	}
	if st.LiveSince != nil {
		status.LiveSince = *st.LiveSince
	}
	return View{Status: status, Devices: devices}, nil
}

func (s RemoteSource) Describe() string { return s.Client.BaseURL }
