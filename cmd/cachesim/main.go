// Package main provides the cachesim command-line tool.
//
// Usage:
//
//	cachesim run [flags] <trace>
//	cachesim bench [flags]
//	cachesim convert <lackey-log> <instr-out> <data-out>
//	cachesim show <results.sqlite3>
package main

import (
	"os"

	"github.com/tebeka/atexit"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
