// Package main is a pointer binary for the x86-64 instruction
// semantics oracle.
//
// For the full CLI, use: go run ./cmd/x86oracle
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("x86oracle - x86-64 instruction semantics test-vector oracle")
	fmt.Println("")
	fmt.Println("Usage: x86oracle [-config path] [-v]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to a run configuration JSON file")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/x86oracle' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: you provided arguments. Use 'go run ./cmd/x86oracle' instead.")
	}
}
