package main

import (
	"github.com/okian/crimecast/internal/cli"
)

var (
	version = "0.1.0"
)

func main() {
	cli.Version = version
	cli.Execute()
}
