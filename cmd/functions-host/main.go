// Command functions-host boots the worker-pool autoscaler host described
// in SPEC_FULL.md: it wires configuration, logging, the RPC dispatcher,
// the concurrency manager, and the admin HTTP surface, then runs until
// SIGINT/SIGTERM.
package main

import "github.com/qsdfplkj/azure-functions-host/cmd/functions-host/commands"

func main() {
	commands.Execute()
}
