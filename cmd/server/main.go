// Package main implements the entry point for the annotator API server,
// which runs batches of audio segments through LLM analysis and records
// human annotations alongside the model's answers.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
