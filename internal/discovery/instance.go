package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// TXT record keys published by Advertise.
const (
	TxtVersion = "version"
	TxtPath    = "path"
	TxtDevices = "devices"
)

// Instance is a running pettracer-live query API found on the network.
type Instance struct {
	// Name is the mDNS instance name (e.g. "pettracer-live on kitchen-pi")
	Name string

	// Hostname is the mDNS hostname (e.g. "kitchen-pi.local.")
	Hostname string

	// IP prefers IPv4
	IP string

	Port int

	// Metadata holds the raw TXT records
	Metadata map[string]string

	DiscoveredAt time.Time
}

// String returns a human-readable description.
func (i *Instance) String() string {
	return fmt.Sprintf("%s (%s) at %s", i.Name, i.Hostname, net.JoinHostPort(i.IP, strconv.Itoa(i.Port)))
}

// BaseURL returns the HTTP base URL of the query API.
func (i *Instance) BaseURL() string {
	return "http://" + net.JoinHostPort(i.IP, strconv.Itoa(i.Port)) + i.GetMetadata(TxtPath)
}

// Version is the advertised build version, if any.
func (i *Instance) Version() string {
	return i.GetMetadata(TxtVersion)
}

// DeviceIDs parses the advertised tracked device list. Malformed entries
// are skipped.
func (i *Instance) DeviceIDs() []int {
	raw := i.GetMetadata(TxtDevices)
	if raw == "" {
		return []int{}
	}
	ids := make([]int, 0, strings.Count(raw, ",")+1)
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// GetMetadata retrieves a TXT value by key, or "" if absent.
func (i *Instance) GetMetadata(key string) string {
	if i.Metadata == nil {
		return ""
	}
	return i.Metadata[key]
}

// TxtRecords builds the TXT records for an advertisement.
func TxtRecords(version, path string, deviceIDs []int) []string {
	ids := make([]string, len(deviceIDs))
	for n, id := range deviceIDs {
		ids[n] = strconv.Itoa(id)
	}
	return []string{
		TxtVersion + "=" + version,
		TxtPath + "=" + path,
		TxtDevices + "=" + strings.Join(ids, ","),
	}
}

func parseTxt(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		key, value, _ := strings.Cut(txt, "=")
		metadata[key] = value
	}
	return metadata
}
