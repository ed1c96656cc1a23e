package main

import "github.com/hostwall/hostwall/cmd"

func main() {
	cmd.Execute()
}
