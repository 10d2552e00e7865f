// Command replicademo drives a handful of in-process Replica values
// through the send/receive protocol so the TCSB behavior described in
// spec §4.5/§8 can be watched end to end, and exposes the resulting
// Prometheus metrics over HTTP the way a real deployment would.
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
