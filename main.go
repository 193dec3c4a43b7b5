// Command lsmkv is a minimal smoke-test binary for the embedded store:
// open a directory, put and get one key, and report round-trip success.
// The engine itself has no CLI surface — callers import package engine
// directly — so this exists only to give the module something runnable.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/avinashk/lsmkv/engine"
)

func main() {
	dir := flag.String("dir", "", "store directory (required)")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: lsmkv -dir <path>")
		os.Exit(2)
	}

	store, err := engine.New(*dir)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	const probeKey = uint64(1)
	if err := store.Put(probeKey, []byte("ok")); err != nil {
		log.Fatalf("put: %v", err)
	}
	v, err := store.Get(probeKey)
	if err != nil {
		log.Fatalf("get: %v", err)
	}
	fmt.Printf("round trip: %s\n", v)
}
