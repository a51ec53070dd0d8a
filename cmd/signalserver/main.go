// Command signalserver runs the crypto price-signal fusion service: it
// subscribes to exchange adapters, resolves signal prices against an
// installed registry, and exposes GetPrices/UpdateRegistry/
// SetActiveSignalIds/GetInfo over HTTP. Wiring order (config -> logger -> store -> workers -> manager ->
// HTTP server -> signal-handled shutdown) follows the teacher's
// cmd/server/main.go.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// bothanVersion is reported verbatim by GetInfo; this service implements
// the registry/resolver semantics of that version of the protocol.
const bothanVersion = "1.0.0"

func main() {
	root := &cobra.Command{
		Use:   "signalserver",
		Short: "Crypto price-signal fusion server",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(queryCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
