// Package pipeline provides a framework for executing scan steps in sequence.
//
// A scan runs through three stages: authenticating against the target,
// crawling it breadth-first, and persisting the results. Each stage is
// implemented as a Step that receives the accumulating report and can
// modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. It allows easy addition/removal of steps without modifying core logic
// 2. It provides consistent error handling and logging across steps
// 3. It supports cancellation via context for long-running scans
package pipeline
