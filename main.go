package main

import "github.com/hearthside/domo/cmd"

func main() {
	cmd.Execute()
}
