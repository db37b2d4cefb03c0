package main

import "github.com/siteflow/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
