// Command rov-video runs the ROV console video core headless: the control
// loop, MQTT command ingress, notifications and the Prometheus endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Version information
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
