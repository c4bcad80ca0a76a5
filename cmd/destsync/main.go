// Command destsync loads a newline-delimited JSON record feed into a
// relational destination, buffering per stream and flushing in batches.
//
// Usage:
//
//	destsync -config pipeline.yaml -input feed.ndjson
//	source-connector read | destsync -config pipeline.json -input -
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// register all backends with the storage factory.
	_ "destsync/internal/storage/all"
)

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "destsync: %v\n", err)
		stop()
		os.Exit(1)
	}
}
