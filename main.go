package main

import "github.com/crystaldolphin/toolsmith/cmd"

func main() {
	cmd.Execute()
}
