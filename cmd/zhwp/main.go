// zhwp tokenizes, trains and converts Chinese-aware WordPiece vocabularies, and encodes corpora to
// Parquet.
package main

import (
	"fmt"
	"os"

	"k8s.io/klog/v2"
)

func main() {
	err := NewRootCmd().Execute()
	klog.Flush()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
