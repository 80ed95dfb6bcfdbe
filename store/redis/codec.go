package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/stepflow/step"
	"github.com/xraph/stepflow/workflow"
)

// Hash field layout for the state and step entities. Scalar fields are
// stored as strings; completed step ids and result data are msgpack blobs.

func stateToMap(st *workflow.State) (map[string]any, error) {
	completed, err := msgpack.Marshal(st.CompletedSteps)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: encode completed steps: %w", err)
	}
	return map[string]any{
		"project_name":    st.ProjectName,
		"current_step":    strconv.Itoa(st.CurrentStep),
		"completed_steps": string(completed),
		"repository":      st.Repository,
		"submission_ref":  st.SubmissionRef,
		"created_at":      st.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      st.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

func mapToState(vals map[string]string) (*workflow.State, error) {
	st := &workflow.State{
		ProjectName:   vals["project_name"],
		Repository:    vals["repository"],
		SubmissionRef: vals["submission_ref"],
	}

	var err error
	if st.CurrentStep, err = strconv.Atoi(vals["current_step"]); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode current_step: %w", err)
	}
	if raw := vals["completed_steps"]; raw != "" {
		if err := msgpack.Unmarshal([]byte(raw), &st.CompletedSteps); err != nil {
			return nil, fmt.Errorf("stepflow/redis: decode completed steps: %w", err)
		}
	}
	if st.CreatedAt, err = time.Parse(time.RFC3339Nano, vals["created_at"]); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode created_at: %w", err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, vals["updated_at"]); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode updated_at: %w", err)
	}
	return st, nil
}

func resultToMap(res *step.Result) (map[string]any, error) {
	data, err := msgpack.Marshal(res.Data)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: encode result data: %w", err)
	}
	return map[string]any{
		"step_id":       strconv.Itoa(res.StepID),
		"status":        string(res.Status),
		"data":          string(data),
		"error_message": res.ErrorMessage,
		"timestamp":     res.Timestamp.Format(time.RFC3339Nano),
	}, nil
}

func mapToResult(vals map[string]string) (*step.Result, error) {
	res := &step.Result{
		Status:       step.Status(vals["status"]),
		ErrorMessage: vals["error_message"],
	}

	var err error
	if res.StepID, err = strconv.Atoi(vals["step_id"]); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode step_id: %w", err)
	}
	if raw := vals["data"]; raw != "" {
		if err := msgpack.Unmarshal([]byte(raw), &res.Data); err != nil {
			return nil, fmt.Errorf("stepflow/redis: decode result data: %w", err)
		}
	}
	if res.Timestamp, err = time.Parse(time.RFC3339Nano, vals["timestamp"]); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode timestamp: %w", err)
	}
	return res, nil
}
