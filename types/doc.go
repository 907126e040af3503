// Package types provides the core data model shared across the orchestration
// core: agents, messages, tool calls, errors, and model/key bookkeeping.
// This package has zero dependencies on any other package in this module so
// that every other package can import it without creating cycles.
package types
