// Package api defines the core data types for the workflow state engine
//
// This package contains the shared types used across the engine, including
// workflow state records, state machine configurations, loop step
// definitions, execution results, events, and HTTP messages
package api
