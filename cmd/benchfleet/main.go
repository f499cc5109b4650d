package main

import "github.com/benchfleet/benchfleet/internal/cli"

func main() {
	cli.Execute()
}
