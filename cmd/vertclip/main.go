package main

import "github.com/forPelevin/vertclip/internal/cli"

func main() {
	cli.Main()
}
