package stepflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("stepflow: no store configured")
	ErrStoreClosed     = errors.New("stepflow: store closed")
	ErrMigrationFailed = errors.New("stepflow: migration failed")

	// Not found errors.
	ErrStateNotFound      = errors.New("stepflow: workflow state not found")
	ErrStepResultNotFound = errors.New("stepflow: step result not found")

	// Engine precondition errors.
	ErrWorkflowNotInitialized = errors.New("stepflow: workflow not initialized")
	ErrStepNotRegistered      = errors.New("stepflow: step not registered")
	ErrStepNotInstantiated    = errors.New("stepflow: step not instantiated")

	// State errors.
	ErrInvalidState       = errors.New("stepflow: invalid state transition")
	ErrMaxRetriesExceeded = errors.New("stepflow: max retries exceeded")
)
