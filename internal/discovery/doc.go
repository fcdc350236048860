// Package discovery announces and finds pettracer-live query APIs over mDNS.
//
// A running `pettracer-live run --advertise` registers a "_pettracer._tcp"
// service. Its TXT records carry the build version, the API base path and
// the comma-separated tracked device ids:
//
//	version=1.2.0 path=/api/v1 devices=12,34
//
// The `discover` and `watch` commands browse for these records so a
// dashboard can attach to an instance without knowing its address.
//
// # Usage Example
//
//	adv, err := discovery.Advertise("pettracer-live on pi", 8780, version.Version, ids)
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	instances, err := discovery.Browse(ctx, 3*time.Second)
//
// # Network Requirements
//
// Multicast must be allowed on the interface and UDP 5353 must be open.
package discovery
