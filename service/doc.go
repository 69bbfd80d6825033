// Package service hosts the engine: a pool registry, the single-writer
// Exchange in front of the ledger and books, log replay and snapshots.
//
// It is decoupled from transports; gRPC and the CLI call into it.
package service
