package main

import "github.com/reelvault/reelvault/cmd"

func main() {
	cmd.Execute()
}
