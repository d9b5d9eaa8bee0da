// Command ragbot indexes documents and answers questions about them.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/ragbot/internal/adapters/driving/cli"
)

// version is set by the build, e.g. -ldflags "-X main.version=v1.2.0".
var version = "dev"

func main() {
	cli.SetVersion(version)
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
