// Package task binds a task implementation to the orchestration engine, the
// entry registry and the store.
//
// Register reads the task's configuration from the store (namespace
// "tasks", key = task name), subscribes to the engine, and wires the
// lifecycle:
//
//   - pre_publish creates the task's stack and inserts its configured
//     entry patterns, then calls PrePublisher when implemented.
//   - publish calls the Publisher and settles the phase once.
//   - post_publish calls PostPublisher when implemented.
//
// Per-entry failures reported as EntryErrors are tolerated (logged, phase
// resolved) when the task's tolerate_errors policy is set.
package task
