// Package hook defines the extension system for stepflow.
// Extensions are notified of lifecycle events (step started, completed,
// failed, retried, rolled back; workflow initialized, loaded) and can
// react to them, for example with logging, metrics, or auditing.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook
