package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/muurk/pettracer/internal/channel"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	devices   map[int]*devicestate.Snapshot
	tracked   []int
	status    channel.Status
	updateErr error
}

func newFakeBackend() *fakeBackend {
	lat, lng := 52.5, 13.4
	return &fakeBackend{
		devices: map[int]*devicestate.Snapshot{
			1: {DeviceID: 1, Name: "Luna", Latitude: &lat, Longitude: &lng},
			2: {DeviceID: 2, Name: "Milo"},
		},
		tracked: []int{1, 2},
		status: channel.Status{
			State:       session.StateLive,
			NextBackoff: 5 * time.Second,
			LiveSince:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func (b *fakeBackend) Devices() []*devicestate.Snapshot {
	out := []*devicestate.Snapshot{}
	for _, id := range []int{1, 2, 3} {
		if s, ok := b.devices[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (b *fakeBackend) Device(id int) (*devicestate.Snapshot, bool) {
	s, ok := b.devices[id]
	return s, ok
}

func (b *fakeBackend) RemoveDevice(id int) (bool, error) {
	_, ok := b.devices[id]
	delete(b.devices, id)
	return ok, nil
}

func (b *fakeBackend) UpdateDeviceIDs(ids []int) error {
	if b.updateErr != nil {
		return b.updateErr
	}
	b.tracked = ids
	return nil
}

func (b *fakeBackend) Status() channel.Status {
	st := b.status
	st.DeviceIDs = b.tracked
	return st
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := NewRouter(newFakeBackend(), Options{})
	w := do(t, router, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestStatus(t *testing.T) {
	router := NewRouter(newFakeBackend(), Options{})
	w := do(t, router, http.MethodGet, "/api/v1/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "live", resp.State)
	assert.Equal(t, 5.0, resp.NextBackoffSeconds)
	assert.Equal(t, []int{1, 2}, resp.DeviceIDs)
	assert.Equal(t, 2, resp.DeviceCount)
	require.NotNil(t, resp.LiveSince)
}

func TestListDevices(t *testing.T) {
	router := NewRouter(newFakeBackend(), Options{})
	w := do(t, router, http.MethodGet, "/api/v1/devices", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp DevicesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.Devices[0].DeviceID)
	assert.Equal(t, "Milo", resp.Devices[1].Name)
}

func TestGetDevice(t *testing.T) {
	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/api/v1/devices/1", http.StatusOK},
		{"missing", "/api/v1/devices/9", http.StatusNotFound},
		{"not a number", "/api/v1/devices/luna", http.StatusBadRequest},
	}
	router := NewRouter(newFakeBackend(), Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.path, "")
			if w.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}

	w := do(t, router, http.MethodGet, "/api/v1/devices/1", "")
	var s devicestate.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, "Luna", s.Name)
	assert.Equal(t, 52.5, *s.Latitude)
}

func TestDeleteDevice(t *testing.T) {
	backend := newFakeBackend()
	router := NewRouter(backend, Options{})

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/api/v1/devices/2", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/api/v1/devices/2", "").Code)
	_, ok := backend.devices[2]
	assert.False(t, ok)
}

func TestUpdateTracked(t *testing.T) {
	backend := newFakeBackend()
	router := NewRouter(backend, Options{})

	w := do(t, router, http.MethodPut, "/api/v1/tracked", `{"deviceIds":[3,4]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{3, 4}, backend.tracked)
	assert.JSONEq(t, `{"deviceIds":[3,4]}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/v1/tracked", `{"deviceIds":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodPut, "/api/v1/tracked", `{}`).Code)

	backend.updateErr = errors.New("socket closed")
	assert.Equal(t, http.StatusBadGateway, do(t, router, http.MethodPut, "/api/v1/tracked", `{"deviceIds":[1]}`).Code)
}

func TestCORSHeaders(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		method  string
		origin  string
		want    string
	}{
		{"default sends no CORS headers", nil, http.MethodGet, "http://evil.example", ""},
		{"default preflight for DELETE not allowed", nil, http.MethodOptions, "http://evil.example", ""},
		{"configured origin allowed", []string{"http://dash.local"}, http.MethodGet, "http://dash.local", "http://dash.local"},
		{"configured preflight allowed", []string{"http://dash.local"}, http.MethodOptions, "http://dash.local", "http://dash.local"},
		{"other origin still refused", []string{"http://dash.local"}, http.MethodGet, "http://evil.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			router := NewRouter(backend, Options{AllowedOrigins: tt.origins})

			req := httptest.NewRequest(tt.method, "/api/v1/devices/1", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.want)
			}
			_, kept := backend.devices[1]
			assert.True(t, kept, "preflight must not reach the delete handler")
		})
	}
}
