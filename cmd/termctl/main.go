package main

import "github.com/gluk-w/termhub/internal/cli"

func main() {
	cli.Execute()
}
