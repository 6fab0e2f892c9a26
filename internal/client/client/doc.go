// Package client talks to the collaboration server.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): Ping,
//     Register, Login, Logout, Push, Update, Delete and incremental Pull.
//  2. A concrete gRPC implementation (see GRPCClient) that manages a
//     connection, injects the access token and device id via an interceptor,
//     transparently refreshes expired tokens, and maps gRPC status codes to
//     sentinel errors.
//
// # Error Handling
//
// Common conditions are exposed as sentinel errors that callers can match with
// errors.Is: ErrUnavailable, ErrUnauthorized, ErrConflict, ErrNotFound,
// ErrRejected. Only ErrUnavailable is worth retrying.
//
// A pull never fails because of a single bad record: records that do not
// decode are reported in PullResult.Invalid and the rest are returned.
package client
