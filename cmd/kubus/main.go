// Command kubus synchronizes and inspects the design documents of a CouchDB
// database.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
