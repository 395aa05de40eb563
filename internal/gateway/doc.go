// Package gateway is the hercules-gateway HTTP server.
//
// It wires the transcript store, the room fan-out hub and the conversation
// relay together and exposes them over HTTP:
//
//	GET  /health                       store reachability
//	GET  /metrics                      Prometheus (when metrics.enabled)
//	GET  /api/public_info              unauthenticated
//	POST /api/tasks                    create a room, run its session in the background
//	GET  /api/rooms/{id}               room details
//	POST /api/rooms/{id}/run           run a session and wait for the result
//	GET  /api/rooms/{id}/messages      transcript as JSON
//	GET  /api/rooms/{id}/transcript    transcript as HTML
//	GET  /api/users/me                 the authenticated caller
//	GET  /ws/{room_id}                 live WebSocket feed of a room
//
// Every /api and /ws route goes through auth.HTTPAuthMiddleware. Rooms are
// visible only to the user who created them.
//
// The listener is either plain TCP on server.http_addr or, with
// tailscale.enabled, a tsnet node on the tailnet.
package gateway
