package main

import "github.com/chrisdamba/radarsim/cmd"

func main() {
	cmd.Execute()
}
