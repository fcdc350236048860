// Package api serves the device snapshot table over HTTP.
//
// Routes:
//
//	GET    /health                liveness
//	GET    /api/v1/status         connection state and tracked devices
//	GET    /api/v1/devices        all snapshots ordered by id
//	GET    /api/v1/devices/:id    one snapshot
//	DELETE /api/v1/devices/:id    stop tracking a device and drop its snapshot
//	PUT    /api/v1/tracked        replace the tracked device set
package api
