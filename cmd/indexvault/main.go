package main

import (
	"github.com/indexvault-go/internal/cli"
)

func main() {
	cli.Execute()
}
