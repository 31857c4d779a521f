package main

import (
	"fmt"
	"os"

	"github.com/filedrop/uploader/internal/cli"
)

// Version is set during build
var Version = "dev"

func main() {
	if err := cli.Execute(Version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
