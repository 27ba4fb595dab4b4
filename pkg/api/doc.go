// Package api exposes the HTTP surface of the gateway.
//
// # Routes
//
//	POST   /sessions                    create a session
//	GET    /sessions                    list sessions
//	GET    /sessions/{id}               get one session
//	DELETE /sessions/{id}               delete a session
//	POST   /sessions/{id}/connect       initiate the protocol connection
//	POST   /sessions/{id}/disconnect    tear the connection down
//	GET    /webhooks/stats              delivery stats snapshot
//	POST   /webhooks/stats/reset        zero the cumulative counters
//	GET    /webhooks/deliveries         recent delivery attempts (?limit=)
//
// Handler wraps the router in recovery, request-id, logging, and body-size
// middleware. Errors map onto status codes through the sentinel errors of
// pkg/session: ErrSessionExists is 409, ErrSessionNotFound is 404.
package api
