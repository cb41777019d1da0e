// Command xrdcp reads a remote file through the multi-source adaptor and
// streams it to stdout.
package main

import (
	"os"
)

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
