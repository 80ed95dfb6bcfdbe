package observability

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/stepflow/hook"
	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// meterName is the instrumentation scope name for stepflow metrics.
const meterName = "github.com/xraph/stepflow"

// Compile-time interface checks.
var (
	_ hook.Extension           = (*MetricsExtension)(nil)
	_ hook.StepStarted         = (*MetricsExtension)(nil)
	_ hook.StepCompleted       = (*MetricsExtension)(nil)
	_ hook.StepFailed          = (*MetricsExtension)(nil)
	_ hook.StepRetrying        = (*MetricsExtension)(nil)
	_ hook.StepRolledBack      = (*MetricsExtension)(nil)
	_ hook.StepRecovered       = (*MetricsExtension)(nil)
	_ hook.WorkflowInitialized = (*MetricsExtension)(nil)
	_ hook.WorkflowLoaded      = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle metrics via OpenTelemetry.
//
// Instruments:
//   - stepflow.step.duration (Float64Histogram): successful step execution
//     time in seconds, attribute: step_id
//   - stepflow.step.attempts (Int64Counter): execution attempts, attribute:
//     step_id
//   - stepflow.step.completed / .failed / .retried / .rolled_back /
//     .recovered (Int64Counter)
//   - stepflow.workflow.initialized / .loaded (Int64Counter)
type MetricsExtension struct {
	duration   metric.Float64Histogram
	attempts   metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	retried    metric.Int64Counter
	rolledBack metric.Int64Counter
	recovered  metric.Int64Counter

	wfInitialized metric.Int64Counter
	wfLoaded      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no provider is configured, the instruments are noops
// and the extension becomes a pass-through.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. This variant allows injecting a specific MeterProvider for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// Instruments are created once; on error the OTel API contract
	// guarantees noop fallbacks, so errors are ignored.
	duration, _ := meter.Float64Histogram(
		"stepflow.step.duration",
		metric.WithDescription("Duration of successful step executions in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"stepflow.step.attempts",
		metric.WithDescription("Total step execution attempts"),
		metric.WithUnit("{attempt}"),
	)
	completed, _ := meter.Int64Counter(
		"stepflow.step.completed",
		metric.WithDescription("Steps completed successfully"),
	)
	failed, _ := meter.Int64Counter(
		"stepflow.step.failed",
		metric.WithDescription("Steps that failed terminally"),
	)
	retried, _ := meter.Int64Counter(
		"stepflow.step.retried",
		metric.WithDescription("Step retry attempts"),
	)
	rolledBack, _ := meter.Int64Counter(
		"stepflow.step.rolled_back",
		metric.WithDescription("Steps rolled back"),
	)
	recovered, _ := meter.Int64Counter(
		"stepflow.step.recovered",
		metric.WithDescription("Steps reset by failure recovery"),
	)
	wfInitialized, _ := meter.Int64Counter(
		"stepflow.workflow.initialized",
		metric.WithDescription("Workflows initialized"),
	)
	wfLoaded, _ := meter.Int64Counter(
		"stepflow.workflow.loaded",
		metric.WithDescription("Workflows rehydrated from the progress store"),
	)

	return &MetricsExtension{
		duration:      duration,
		attempts:      attempts,
		completed:     completed,
		failed:        failed,
		retried:       retried,
		rolledBack:    rolledBack,
		recovered:     recovered,
		wfInitialized: wfInitialized,
		wfLoaded:      wfLoaded,
	}
}

// Name returns the extension name.
func (*MetricsExtension) Name() string { return "observability.metrics" }

func stepAttrs(stepID int) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("step_id", strconv.Itoa(stepID)))
}

// OnStepStarted counts an execution attempt.
func (m *MetricsExtension) OnStepStarted(ctx context.Context, stepID, _, _ int) error {
	m.attempts.Add(ctx, 1, stepAttrs(stepID))
	return nil
}

// OnStepCompleted counts a completion and records its duration.
func (m *MetricsExtension) OnStepCompleted(ctx context.Context, res *step.Result, elapsed time.Duration) error {
	attrs := stepAttrs(res.StepID)
	m.completed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
	return nil
}

// OnStepFailed counts a terminal failure.
func (m *MetricsExtension) OnStepFailed(ctx context.Context, stepID int, _ error) error {
	m.failed.Add(ctx, 1, stepAttrs(stepID))
	return nil
}

// OnStepRetrying counts a retry.
func (m *MetricsExtension) OnStepRetrying(ctx context.Context, stepID, _ int) error {
	m.retried.Add(ctx, 1, stepAttrs(stepID))
	return nil
}

// OnStepRolledBack counts a rollback.
func (m *MetricsExtension) OnStepRolledBack(ctx context.Context, stepID int) error {
	m.rolledBack.Add(ctx, 1, stepAttrs(stepID))
	return nil
}

// OnStepRecovered counts a failure recovery.
func (m *MetricsExtension) OnStepRecovered(ctx context.Context, stepID int) error {
	m.recovered.Add(ctx, 1, stepAttrs(stepID))
	return nil
}

// OnWorkflowInitialized counts a workflow initialization.
func (m *MetricsExtension) OnWorkflowInitialized(ctx context.Context, projectName string) error {
	m.wfInitialized.Add(ctx, 1, metric.WithAttributes(attribute.String("project", projectName)))
	return nil
}

// OnWorkflowLoaded counts a workflow rehydration.
func (m *MetricsExtension) OnWorkflowLoaded(ctx context.Context, st *workflow.State) error {
	m.wfLoaded.Add(ctx, 1, metric.WithAttributes(attribute.String("project", st.ProjectName)))
	return nil
}
