package main

import (
	"context"
	"os"

	"github.com/buildherd/buildherd/pkg/cli"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(cli.NewCLI(&cli.Config{Version: version}).Main(context.Background(), os.Args[1:]))
}
