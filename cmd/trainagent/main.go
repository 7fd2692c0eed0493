package main

import "github.com/openchat-labs/agent-orchestrator/services/trainagent/cli"

func main() {
	cli.Execute()
}
