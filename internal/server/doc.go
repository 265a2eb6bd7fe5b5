// Package server implements the HTTP API server for the workflow state
// engine
//
// This package provides REST endpoints for managing workflow states, the
// machine catalog, loop executions, health checks, metrics, and WebSocket
// event streaming
package server
