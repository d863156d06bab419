// Command testbroker runs a local MQTT broker to benchmark against.
//
// Usage:
//
//	testbroker [flags]
//
// Flags:
//
//	--port            Port to listen on (default: 1883)
//	--host            Host to bind to (default: localhost)
//	--deny-subscribe  Topic prefix whose subscriptions are rejected (repeatable)
package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"mqttbench/testbroker"
)

func main() {
	var (
		host string
		port int
		deny []string
	)

	cmd := &cobra.Command{
		Use:           "testbroker",
		Short:         "Run a local MQTT broker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			b, err := testbroker.Start(testbroker.Options{
				Address:       addr,
				DenySubscribe: deny,
				Logger:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
			})
			if err != nil {
				return err
			}

			fmt.Println("mqttbench Test Broker")
			fmt.Println("=====================")
			fmt.Printf("Listening on %s\n", b.URL())
			for _, prefix := range deny {
				fmt.Printf("  rejecting subscriptions under %q\n", prefix)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			fmt.Printf("\nShutting down (published=%d connects=%d)...\n", b.Published(), b.Connects())
			return b.Close()
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "host to bind to")
	cmd.Flags().IntVar(&port, "port", 1883, "port to listen on")
	cmd.Flags().StringArrayVar(&deny, "deny-subscribe", nil, "reject subscriptions under this topic prefix")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
