// Command bpost validates Belgian postal addresses against the bpost address
// validation service from the command line.
//
// Usage:
//
//	bpost geocode "Place des Palais 5, 1000 Bruxelles"
//	bpost geocode --street-name "Place des Palais" --street-number 5 --postal-code 1000 --json "Place des Palais 5"
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
