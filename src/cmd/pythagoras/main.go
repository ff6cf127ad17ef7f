package main

import (
	cmd "github.com/pythagoras-dev/pythagoras/src/cmd/pythagoras/command"
)

func main() {
	cmd.Execute()
}
