// Command deta is a command line client of Deta Base and Drive.
package main

import (
	"os"

	"github.com/bitrise-io/go-utils/v2/env"
)

func main() {
	if err := newRootCmd(env.NewRepository()).Execute(); err != nil {
		os.Exit(1)
	}
}
