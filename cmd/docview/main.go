package main

import "github.com/emrgen/docview/cmd"

func main() {
	cmd.Execute()
}
