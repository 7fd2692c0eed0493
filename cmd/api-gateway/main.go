package main

import "github.com/openchat-labs/agent-orchestrator/services/api-gateway/cli"

func main() {
	cli.Execute()
}
