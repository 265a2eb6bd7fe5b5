// Package engine implements the core workflow state engine
//
// This package contains the main engine logic for driving state machine
// transitions, managing snapshots, rollback, and history compaction, and
// executing for and while loops with retry and safety bounds
package engine
