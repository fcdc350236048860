package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/muurk/pettracer/internal/devicestate"
	"github.com/muurk/pettracer/internal/version"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	State              string     `json:"state"`
	Retries            int        `json:"retries"`
	NextBackoffSeconds float64    `json:"next_backoff_seconds"`
	DeviceIDs          []int      `json:"device_ids"`
	DeviceCount        int        `json:"device_count"`
	AttemptID          string     `json:"attempt_id,omitempty"`
	LastError          string     `json:"last_error,omitempty"`
	LiveSince          *time.Time `json:"live_since,omitempty"`
}

// DevicesResponse is the body of GET /api/v1/devices.
type DevicesResponse struct {
	Devices []*devicestate.Snapshot `json:"devices"`
	Count   int                     `json:"count"`
}

// TrackedRequest is the body of PUT /api/v1/tracked.
type TrackedRequest struct {
	DeviceIDs []int `json:"deviceIds" binding:"required"`
}

type handler struct {
	backend Backend
	started time.Time
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *handler) status(c *gin.Context) {
	st := h.backend.Status()
	devices := h.backend.Devices()
	ids := st.DeviceIDs
	if ids == nil {
		ids = []int{}
	}
	resp := StatusResponse{
		State:              st.State.String(),
		Retries:            st.Retries,
		NextBackoffSeconds: st.NextBackoff.Seconds(),
		DeviceIDs:          ids,
		DeviceCount:        len(devices),
		AttemptID:          st.AttemptID,
		LastError:          st.LastError,
	}
	if !st.LiveSince.IsZero() {
		resp.LiveSince = &st.LiveSince
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listDevices(c *gin.Context) {
	devices := h.backend.Devices()
	c.JSON(http.StatusOK, DevicesResponse{Devices: devices, Count: len(devices)})
}

func (h *handler) getDevice(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	snapshot, found := h.backend.Device(id)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *handler) deleteDevice(c *gin.Context) {
	id, ok := deviceIDParam(c)
	if !ok {
		return
	}
	found, err := h.backend.RemoveDevice(id)
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "device not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) updateTracked(c *gin.Context) {
	var req TrackedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.backend.UpdateDeviceIDs(req.DeviceIDs); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceIds": h.backend.Status().DeviceIDs})
}

func deviceIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "device id must be an integer"})
		return 0, false
	}
	return id, true
}
