// keeper-dump inspects packet dump files written by mc-keeper.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/reallyoldfogie/mc-keeper-go/dump"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <file.dump.gz> [file2.dump.gz ...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Validates mc-keeper packet dump files and prints their stats.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	quiet := flag.Bool("q", false, "Quiet mode (errors only)")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	exitCode := 0
	for _, file := range flag.Args() {
		stats, err := dump.ValidateFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(file), err)
			exitCode = 1
			continue
		}
		if *quiet {
			continue
		}
		span := time.Duration(stats.LastMillis-stats.FirstMillis) * time.Millisecond
		fmt.Printf("%s: %d records (%d in, %d out), %d payload bytes, %s\n",
			filepath.Base(file), stats.Records, stats.Inbound, stats.Outbound,
			stats.Bytes, span)
	}
	os.Exit(exitCode)
}
