// Package api contains API service implementations.
//
// The httpapi subpackage serves the engine's JSON contract: protocol
// commitment, proof submission, status snapshots, and score history. Callers
// are identified by the X-Owner-ID header; authentication is a front-proxy
// concern. Engine errors map to HTTP statuses through their domain codes,
// including 423 Locked while an owner's lockout is armed.
package api
