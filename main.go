package main

import "github.com/KaramelBytes/insightloom-cli/cmd"

func main() {
	cmd.Execute()
}
