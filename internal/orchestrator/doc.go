// Package orchestrator drives a project through its lifecycle.
//
// The orchestrator owns the lifecycle state machine:
//
//	idle -> planning -> implementation -> testing -> review -> idle
//
// Each iteration it builds a decision context, asks the oracle adapter for
// one action, dispatches it through the action registry, records progress
// and gives the persistence scheduler a chance to save. Stages advance one
// step at a time and only after a successful action leaves the stage's
// required artifacts in the project.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.Config{
//		Dispatcher: dispatcher,
//		Adapter:    adapter,
//		Tracker:    tracker,
//		Scheduler:  scheduler,
//		Store:      store,
//		Workspace:  ws,
//	}, orchestrator.WithLogger(logger))
//	err = orch.Run(ctx)
package orchestrator
