// Package builder provides a client API for working with the workflow
// state engine
//
// The builder package offers fluent construction of machine configurations
// and loop steps, an HTTP client for the engine's REST API, and an adapter
// for serving task step handlers
package builder
