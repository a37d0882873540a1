// Command svcschedd runs the schedule-driven unit supervisor. It takes
// no arguments: all behavior comes from ./svcm/config.json, read once
// at startup. SIGINT, SIGTERM, and SIGABRT trigger cooperative
// shutdown.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	svcsched "github.com/axondata/go-svcsched"
)

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Println("Initializing service scheduler")
	fmt.Println("Press Ctrl+C to exit...")

	sup := svcsched.New()
	defer sup.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	go func() {
		sig := <-sigCh
		log := sup.Logger()
		log.Info().Str("signal", sig.String()).Msg("exit signal received")
		sup.Exit()
	}()

	if err := sup.Prepare(); err != nil {
		fmt.Fprintf(os.Stderr, "service scheduler exited with failed prepare: %v\n", err)
		return 1
	}

	if err := sup.Block(); err != nil {
		fmt.Fprintf(os.Stderr, "service scheduler exited with failed block: %v\n", err)
		return 1
	}

	log := sup.Logger()
	log.Info().Msg("service scheduler exited properly")
	fmt.Println("ALL IS WELL")

	return 0
}
