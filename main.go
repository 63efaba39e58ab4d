package main

import "github.com/strrl/ng12-assist/cmd/ng12/commands"

func main() {
	commands.Execute()
}
