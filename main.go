// Package main provides the entry point for cachemodel.
// cachemodel is a trace-driven cache performance model with three-Cs miss
// classification, built on Akita.
//
// For the full CLI, use: go run ./cmd/cachesim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("cachemodel - Trace-Driven Cache Performance Model")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: cachesim <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run <trace>   Replay a trace through one or more caches")
	fmt.Println("  bench         Run synthetic access patterns")
	fmt.Println("  convert       Split a valgrind lackey log into traces")
	fmt.Println("  show <db>     Print recorded results")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/cachesim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/cachesim' instead.")
	}
}
