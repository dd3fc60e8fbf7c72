// Command machinecode prints the machine code for this host. Users send
// the code to the vendor when requesting a license; support uses the
// verbose mode to diagnose fingerprinting problems.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"convertercli/internal/security"
)

func main() {
	verbose := flag.Bool("v", false, "also print the raw hardware identifiers")
	flag.Parse()

	// Keep collection warnings off stdout so the code can be piped.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))

	fm := security.NewFingerprintManager()
	fmt.Println(fm.MachineCode())

	if *verbose {
		components := fm.Components()
		for _, name := range []string{"board_serial", "cpu_id", "mac_address", "disk_serial"} {
			fmt.Fprintf(os.Stderr, "%-14s %s\n", name, components[name])
		}
	}
}
