package main

import (
	"os"

	"taskline/cmd/taskline/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
