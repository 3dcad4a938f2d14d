package main

import "clgen/cmd"

func main() {
	cmd.Execute()
}
