// cmd/glucose-insights/main.go
package main

import "mcp-glucose-insights/internal/cli"

func main() {
	cli.Execute()
}
