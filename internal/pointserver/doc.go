// Package pointserver exposes bridge data points to clients.
//
// It owns the in-memory point table that bridges declare and publish into,
// a scheduler for periodic tasks, and an HTTP API with a WebSocket stream:
//
//	GET /api/v1/health        server status and time
//	GET /api/v1/points        every point, sorted by name
//	GET /api/v1/points/{name} one point (names may contain '/')
//	GET /api/v1/history/{name} recorded samples, newest first (?limit=)
//	GET /api/v1/channels      the stored channel registry
//	GET /ws                   "point.snapshot" then "point.updated" frames
//	                          (?point= repeated to filter)
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	srv, err := pointserver.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package pointserver
