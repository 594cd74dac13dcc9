package main

import "github.com/Tyrowin/gochat-sync/internal/cli"

func main() {
	cli.Execute()
}
