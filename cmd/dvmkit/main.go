package main

import (
	"github.com/dvm-project/dvmkit/cmd/dvmkit/cli"
)

var version = "v0.1.0-dev"

func main() {
	cli.Execute(version)
}
