package main

import "github.com/rustyeddy/predictsim/internal/cli"

func main() {
	cli.Execute()
}
