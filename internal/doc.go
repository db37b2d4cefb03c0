// Package internal documents the Siteflow server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP dispatch, the RPC and REST adapters, middleware and docs
// - procedure: the typed procedure router shared by both adapters
// - domain: todos, users and sessions
// - storage: PostgreSQL and SQLite repositories and migrations
// - client: the typed client and query cache used by the CLI and MCP server
// - jobs: background workers and queues
// - auth, audit, config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
