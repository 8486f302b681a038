// Package client contains client-side building blocks for StudyNote.
//
// # Overview
//
// The package provides:
//  1. A gRPC transport (see GRPCClient) that manages a connection, injects
//     the access token via interceptors, transparently refreshes expired
//     tokens and maps gRPC statuses to sentinel and auth errors.
//  2. Live query streams (see LiveQuery) that deliver full result-set
//     snapshots pushed by the server.
//  3. Local persistence bootstrap (OpenDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Transport conditions are exposed as sentinel errors that callers can match
// with errors.Is: ErrUnavailable and ErrUnauthorized. Auth
// failures surface as *common.AuthError carrying the provider code.
//
// GRPCClient is safe for concurrent use.
package client
