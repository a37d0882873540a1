// Command svcschedctl drives a single unit operation for diagnostics:
//
//	svcschedctl [-driver dbus|systemctl] <task> <unit>
//
// where task is one of start, stop, restart, status. The unit name is
// normalized the same way the supervisor normalizes configured names.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	svcsched "github.com/axondata/go-svcsched"
)

func main() {
	var (
		driverKind = flag.String("driver", "dbus", "Driver backend: dbus or systemctl")
		timeout    = flag.Duration("timeout", 10*time.Second, "Operation timeout")
	)
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: svcschedctl [-driver dbus|systemctl] <start|stop|restart|status> <unit>")
		os.Exit(1)
	}

	if err := run(*driverKind, flag.Arg(0), flag.Arg(1), *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(driverKind, task, unit string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	driver, err := svcsched.NewUnitDriver(ctx, svcsched.DriverKind(driverKind))
	if err != nil {
		return fmt.Errorf("creating driver: %w", err)
	}
	defer func() { _ = driver.Close() }()

	name := svcsched.NormalizeUnitName(unit)

	switch task {
	case "start":
		if err := driver.Start(ctx, name); err != nil {
			return fmt.Errorf("unable to start %s: %w", name, err)
		}
		fmt.Printf("%s started\n", name)

	case "stop":
		if err := driver.Stop(ctx, name); err != nil {
			return fmt.Errorf("unable to stop %s: %w", name, err)
		}
		fmt.Printf("%s stopped\n", name)

	case "restart":
		if err := driver.Restart(ctx, name); err != nil {
			return fmt.Errorf("unable to restart %s: %w", name, err)
		}
		fmt.Printf("%s restarted\n", name)

	case "status":
		state, err := driver.Status(ctx, name)
		if err != nil {
			return fmt.Errorf("unable to check %s: %w", name, err)
		}
		fmt.Printf("%s status %s\n", name, state)

	default:
		return fmt.Errorf("unknown task %q", task)
	}

	return nil
}
