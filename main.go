package main

import "github.com/hearthgrid/hearth/cmd"

func main() {
	cmd.Execute()
}
