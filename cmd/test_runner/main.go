package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	race       = flag.Bool("race", false, "enable the race detector")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	pkg        = flag.String("pkg", "./...", "package pattern to test")
)

func main() {
	flag.Parse()

	// Build test command
	args := []string{"test"}

	// Add verbose flag if requested
	if *verbose {
		args = append(args, "-v")
	}

	// Add short flag if requested
	if *short {
		args = append(args, "-short")
	}

	// Add race detector if requested; the dispatcher and feed paths are
	// the usual suspects.
	if *race {
		args = append(args, "-race")
	}

	// Add timeout
	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))

	// Add test regexp if provided
	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}

	// Add package specifier
	args = append(args, *pkg)

	// Create command
	cmd := exec.Command("go", args...)

	// Redirect output
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Run tests
	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
