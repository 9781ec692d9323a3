// Command cascades plans and runs the demo query catalog.
//
//	cascades load --db testdata/cascades.db
//	cascades explain symbol-history --memo
//	cascades run volume-by-symbol --engine badger --db testdata/cascades.db
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
