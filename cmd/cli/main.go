package main

import "github.com/heapstream/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
