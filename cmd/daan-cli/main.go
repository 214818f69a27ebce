package main

import "github.com/vishesh2305/DAAN/cmd/daan-cli/cmd"

func main() {
	cmd.Execute()
}
