// Command namehist serves and maintains a cache of account name histories.
package main

import (
	"context"
	"os"

	"github.com/roach88/namehist/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
