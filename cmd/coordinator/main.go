package main

import "github.com/ideavolution/coordinator/cmd/coordinator/cmd"

func main() {
	cmd.Execute()
}
