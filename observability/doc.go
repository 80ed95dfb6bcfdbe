// Package observability provides a metrics extension that records step and
// workflow lifecycle metrics through the OpenTelemetry metric API. Register
// it with a hook.Registry to automatically track completions, failures,
// retries, rollbacks, recoveries, and step durations.
package observability
