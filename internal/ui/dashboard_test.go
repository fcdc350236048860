package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/signal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	view  View
	err   error
	calls int
}

func (s *fakeSource) Fetch(context.Context) (View, error) {
	s.calls++
	return s.view, s.err
}

func (s *fakeSource) Describe() string { return "fake" }

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func sampleView() View {
	lat, lng := 52.52, 13.405
	led := true
	battery := signal.TranslateBattery(4050)
	reading := signal.Translate(150)
	mode, _ := signal.ModeCodeToDescriptor(signal.ModeSearch)
	return View{
		Status: ConnStatus{State: "live", DeviceIDs: []int{1, 2}, LiveSince: testNow.Add(-time.Hour)},
		Devices: []*devicestate.Snapshot{
			{
				DeviceID: 1, Name: "Luna",
				Latitude: &lat, Longitude: &lng,
				Battery: &battery, Signal: &reading, Mode: &mode,
				LED:       &led,
				UpdatedAt: testNow.Add(-30 * time.Second),
			},
			{DeviceID: 2},
		},
	}
}

func newTestDashboard(src Source) Dashboard {
	m := NewDashboard(src, time.Second)
	m.now = func() time.Time { return testNow }
	return m
}

func update(t *testing.T, m Dashboard, msg tea.Msg) (Dashboard, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	d, ok := next.(Dashboard)
	require.True(t, ok, "Update returned %T", next)
	return d, cmd
}

func TestDashboardRendersDevices(t *testing.T) {
	m := newTestDashboard(&fakeSource{})
	m, _ = update(t, m, viewMsg{view: sampleView(), at: testNow})

	out := m.View()
	assert.Contains(t, out, "PETTRACER LIVE")
	assert.Contains(t, out, "live")
	assert.Contains(t, out, "2 tracked")
	assert.Contains(t, out, "Luna")
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, "SEARCH")
	assert.Contains(t, out, "52.52000,13.40500")
	assert.Contains(t, out, "30s ago")
	assert.Contains(t, out, "no fix")

	// detail pane for the first row
	assert.Contains(t, out, "Luna (#1)")
	assert.Contains(t, out, "on / -")
}

func TestDashboardCursorMovesDetail(t *testing.T) {
	m := newTestDashboard(&fakeSource{})
	m, _ = update(t, m, viewMsg{view: sampleView(), at: testNow})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.NotNil(t, m.selected())
	assert.Equal(t, 2, m.selected().DeviceID)
	assert.Contains(t, m.View(), "#2 (#2)")
}

func TestDashboardKeepsLastViewOnError(t *testing.T) {
	m := newTestDashboard(&fakeSource{})
	m, _ = update(t, m, viewMsg{view: sampleView(), at: testNow})
	m, _ = update(t, m, viewMsg{err: errors.New("connection refused"), at: testNow})

	out := m.View()
	assert.Contains(t, out, "Luna")
	assert.Contains(t, out, "fetch failed: connection refused")
}

func TestDashboardShrinkingViewClampsCursor(t *testing.T) {
	m := newTestDashboard(&fakeSource{})
	m, _ = update(t, m, viewMsg{view: sampleView(), at: testNow})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})

	v := sampleView()
	v.Devices = v.Devices[:1]
	m, _ = update(t, m, viewMsg{view: v, at: testNow})
	require.NotNil(t, m.selected())
	assert.Equal(t, 1, m.selected().DeviceID)
}

func TestDashboardRetryBanner(t *testing.T) {
	m := newTestDashboard(&fakeSource{})
	m, _ = update(t, m, viewMsg{view: View{Status: ConnStatus{
		State:       "disconnected",
		Retries:     3,
		NextBackoff: 20 * time.Second,
		LastError:   "transport: heartbeat timeout",
	}}, at: testNow})

	out := m.View()
	assert.Contains(t, out, "retry 3, next in 20s")
	assert.Contains(t, out, "last error: transport: heartbeat timeout")
	assert.Contains(t, out, "no device data yet")
}

func TestDashboardKeys(t *testing.T) {
	src := &fakeSource{view: sampleView()}
	m := newTestDashboard(src)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Errorf("q produced %T, want tea.QuitMsg", cmd())
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	msg, ok := cmd().(viewMsg)
	require.True(t, ok)
	assert.Equal(t, 1, src.calls)
	assert.Len(t, msg.view.Devices, 2)

	_, cmd = update(t, m, RefreshMsg{})
	require.NotNil(t, cmd)
	_ = cmd()
	assert.Equal(t, 2, src.calls)
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "now"},
		{45 * time.Second, "45s ago"},
		{3 * time.Minute, "3m ago"},
		{5 * time.Hour, "5h ago"},
		{72 * time.Hour, "2024-05-29"},
	}

	for _, tt := range tests {
		if got := formatAge(testNow, testNow.Add(-tt.ago)); got != tt.want {
			t.Errorf("formatAge(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := formatAge(testNow, time.Time{}); got != "-" {
		t.Errorf("formatAge(zero) = %q, want -", got)
	}
}

func TestResultRender(t *testing.T) {
	out := NewSuccessResult("Config written",
		Detail{Key: "Path", Value: "/tmp/config.yaml"},
		Detail{Key: "Devices", Value: "0"},
	).SetWidth(80).Render()
	assert.Contains(t, out, "Config written")
	assert.Less(t, strings.Index(out, "Path"), strings.Index(out, "Devices"))

	out = NewFailureResult("Decode failed", errors.New("bad envelope"), "check the capture file").SetWidth(80).Render()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "bad envelope")
	assert.Contains(t, out, "check the capture file")
}

func TestHeaderRenderKeepsParamOrder(t *testing.T) {
	out := NewHeader("live channel", "pettracer-live run",
		Detail{Key: "Endpoint", Value: "wss://pt.pettracer.com"},
		Detail{Key: "Devices", Value: "1, 2"},
	).SetWidth(80).Render()

	assert.Contains(t, out, "LIVE CHANNEL")
	assert.Less(t, strings.Index(out, "Endpoint"), strings.Index(out, "Devices"))
}
