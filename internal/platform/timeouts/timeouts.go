// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between call sites and makes the
// durations discoverable.
package timeouts

import "time"

// ProofStorePut caps the time allowed for storing one proof artifact.
const ProofStorePut = 5 * time.Second

// ProofStoreCheck caps the time allowed for a proof existence lookup.
const ProofStoreCheck = 2 * time.Second

// Notify caps the time allowed for one best-effort notification decision
// to be handed off to a sink.
const Notify = 3 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
