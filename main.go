package main

import "github.com/dayuer/dockbus/cmd"

func main() {
	cmd.Execute()
}
