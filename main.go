package main

import "devcrew/cmd"

func main() {
	cmd.Execute()
}
