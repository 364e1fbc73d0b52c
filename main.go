// Command flowctl drives reproducible multi-stage data-processing pipelines.
package main

import (
	"os"

	"github.com/labflow/flowctl/internal/cmd"
)

const version = "0.1.0"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], version))
}
