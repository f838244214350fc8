package main

import "github.com/gc-refproc/cmd/refsim/cmd"

func main() {
	cmd.Execute()
}
