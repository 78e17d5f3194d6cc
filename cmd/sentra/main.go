package main

import "github.com/sentra-ai/sentra/internal/cli"

func main() {
	cli.Execute()
}
