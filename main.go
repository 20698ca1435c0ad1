package main

import "github.com/gaurav-prasanna/editalpipe/cmd"

func main() {
	cmd.Execute()
}
