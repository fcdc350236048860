// Package urls holds the vendor URLs shown to users in hints and help text.
//
// Usage:
//
//	import "github.com/muurk/pettracer/internal/urls"
//
//	fmt.Printf("Sign in at %s to obtain a token\n", urls.PortalDashboard)
package urls
