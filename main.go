package main

import "github.com/fakeyudi/eyetrial/cmd"

func main() {
	cmd.Execute()
}
