// Package paisley identifies the workflow state engine build
package paisley

const (
	Name    = "paisley"
	Version = "0.1.0"
)
