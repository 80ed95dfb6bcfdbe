// Package step defines the step contract: the Step capability set
// (execute, validate, rollback), step statuses and results, factories,
// and the registration maps the engine resolves steps from.
package step
