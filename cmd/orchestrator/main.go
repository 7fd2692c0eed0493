package main

import "github.com/openchat-labs/agent-orchestrator/services/orchestrator/cli"

func main() {
	cli.Execute()
}
