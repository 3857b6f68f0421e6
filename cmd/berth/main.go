package main

import "github.com/rzbill/berth/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
