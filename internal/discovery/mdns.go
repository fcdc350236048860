package discovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/muurk/pettracer/internal/logging"
	"go.uber.org/zap"
)

const (
	// ServiceType is the mDNS service type of the query API
	ServiceType = "_pettracer._tcp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a browse
	DefaultScanTimeout = 5 * time.Second

	// APIPath is advertised as the TXT "path" record
	APIPath = "/api/v1"
)

// Advertiser announces a running query API until Shutdown.
type Advertiser struct {
	mu       sync.Mutex
	server   *zeroconf.Server
	version  string
	instance string
}

// Advertise registers instance on port with the tracked device ids in TXT.
func Advertise(instance string, port int, version string, deviceIDs []int) (*Advertiser, error) {
	if instance == "" {
		return nil, fmt.Errorf("mdns: empty instance name")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("mdns: invalid port %d", port)
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port,
		TxtRecords(version, APIPath, deviceIDs), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising query API over mDNS",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", port),
	)
	return &Advertiser{server: server, version: version, instance: instance}, nil
}

// UpdateDevices republishes the TXT records with a new device list.
func (a *Advertiser) UpdateDevices(deviceIDs []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.SetText(TxtRecords(a.version, APIPath, deviceIDs))
}

// Shutdown withdraws the advertisement. Safe to call more than once.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	logging.Info("mDNS advertisement withdrawn", zap.String("instance", a.instance))
}

// Scanner browses for running instances.
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a scanner with default settings.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan browses until the timeout or ctx ends and returns the instances
// found, ordered by name.
func (s *Scanner) Scan(ctx context.Context) ([]*Instance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	var (
		mu    sync.Mutex
		found = make(map[string]*Instance)
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				inst := s.parseServiceEntry(entry)
				if inst == nil {
					continue
				}
				mu.Lock()
				found[inst.Name] = inst
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	<-ctx.Done()

	mu.Lock()
	defer mu.Unlock()
	instances := make([]*Instance, 0, len(found))
	for _, inst := range found {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

// parseServiceEntry converts a zeroconf entry; nil when it has no address.
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Instance {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" || entry.Port == 0 {
		return nil
	}

	return &Instance{
		Name:         entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     parseTxt(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// Browse is a convenience wrapper scanning with a custom timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]*Instance, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Scan(ctx)
}
