// Package supervisor owns the lifecycle of the external classification
// worker.
//
// A Supervisor runs at most one worker at a time. It spawns the process in
// its own process group, feeds stdout and stderr through one events.Parser
// each, publishes every event on the status bus, and appends the ids of
// successful results to the checkpoint. Every run ends with exactly one
// Complete event: the first structured completion the worker sends, or one
// published when the worker exits. A heuristic marker match is held until
// exit and then published with the exit code deciding success; without a
// marker the completion is synthesized from the exit code alone. Output left
// open by a background child is drained for a bounded time after exit.
//
// States move Idle -> Starting -> Running -> Stopping -> Terminated, with
// Running -> Terminated on an unrequested exit. Start from Terminated begins
// a new run.
package supervisor
