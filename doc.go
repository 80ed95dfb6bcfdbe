// Package stepflow provides a resumable, dependency-aware step orchestration
// engine for multi-stage project workflows.
//
// Stepflow is designed as a library, not a service. Register numbered steps
// (each exposing execute, validate, and rollback), declare flat prerequisite
// lists between them, and drive the workflow through the engine. Progress is
// persisted through a pluggable progress store so an interrupted workflow can
// be reloaded and resumed from where it left off.
//
// # Quick Start
//
//	st := memory.New()
//	eng := engine.New(st)
//
//	eng.RegisterStep(1, step.FactoryFunc(func() step.Step { return &SetupStep{} }))
//	eng.RegisterStep(2, step.FactoryFunc(func() step.Step { return &ValidateDataStep{} }))
//	eng.RegisterDependencies(2, 1)
//
//	if err := eng.InitializeWorkflow(ctx, "ev-analysis"); err != nil {
//	    log.Fatal(err)
//	}
//	res := eng.ExecuteStepWithRetry(ctx, 1)
//
// # Architecture
//
// Stepflow follows a composable store pattern: the workflow package defines
// the progress store contract, and a single backend (memory, file, redis,
// postgres, bun) implements it. Optional store capabilities (workflow
// initialization, per-step rollback, step result lookup) are discovered by
// type assertion and used preferentially when present.
//
// One engine instance drives one workflow run and is intended for
// single-threaded, synchronous use. Distinct workflows may run concurrently
// as long as each has its own engine instance and store namespace.
package stepflow
