// Package gateway orchestrates the whitelist-gateway server components.
//
// # Overview
//
// The gateway owns the store, the admin registry, the message dispatcher,
// the outbox sinks and the replay guard, and serves them over gRPC and HTTP.
// New wires everything from a config.Config; Run listens (TCP or tailnet)
// until the context is canceled; Shutdown releases resources.
//
// # HTTP API
//
//   - POST /api/execute     - exec message from the authenticated sender
//     (Idempotency-Key header enables replay protection for execute)
//   - POST /api/instantiate - instantiate message on an empty store
//   - POST /api/query       - query message; no identity required
//   - GET  /api/admins      - admin list
//   - GET  /api/audit       - audit log, admins only
//   - GET  /api/events      - server-sent stream of forwarded envelopes,
//     admins only (?sender= narrows it to one sender)
//   - GET  /health          - liveness
//   - GET  /health/ready    - ready once instantiated
//   - GET  /status          - HTML summary
//   - GET  /metrics         - Prometheus, when metrics.enabled
//
// Errors are JSON: {"error": "<code>", "error_description": "..."}.
//
//	unauthorized          403
//	frozen                409
//	invalid_principal     400
//	invalid_message       400
//	already_instantiated  409
//	not_instantiated      404
//	replayed              409
//	unauthenticated       401
//	internal_error        500
//
// # gRPC
//
// The whitelist.v1.Whitelist service carries the same JSON documents in
// google.protobuf.BytesValue. Query and the standard health service are
// public; Execute and Instantiate require identity. Errors map to
// PermissionDenied, FailedPrecondition, InvalidArgument, AlreadyExists,
// NotFound, Unauthenticated and Internal.
package gateway
