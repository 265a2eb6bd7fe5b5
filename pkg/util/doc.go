// Package util provides common utility functions and data structures
//
// This package includes generic set and path tree implementations used
// throughout the workflow engine
package util
