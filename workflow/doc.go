// Package workflow defines the durable workflow state entity and the
// progress store contract the engine persists through.
package workflow
