package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/voluzi/traceclaw/cmd/traceclaw/cmd"
)

func main() {
	cmd.Execute()
}
