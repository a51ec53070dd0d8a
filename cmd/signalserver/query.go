package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

// query is a one-shot client mirroring
// original_source/bothan-api/server-cli/src/commands/query.rs: call
// GetPrices against a running server and print a table.
func queryCmd() *cobra.Command {
	var addr string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query [signal_ids...]",
		Short: "Query prices for one or more signal ids from a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(addr, timeout, args)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "signalserver base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

type queryPricesRequest struct {
	SignalIDs []string `json:"signal_ids"`
}

type queryPriceDTO struct {
	SignalID string `json:"signal_id"`
	Price    int64  `json:"price"`
	Status   string `json:"status"`
}

type queryPricesResponse struct {
	UUID   string          `json:"uuid"`
	Prices []queryPriceDTO `json:"prices"`
}

func runQuery(addr string, timeout time.Duration, signalIDs []string) error {
	client := resty.New().SetBaseURL(addr).SetTimeout(timeout)

	var resp queryPricesResponse
	res, err := client.R().
		SetBody(queryPricesRequest{SignalIDs: signalIDs}).
		SetResult(&resp).
		Post("/api/v1/prices")
	if err != nil {
		return fmt.Errorf("query: request failed: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("query: server returned %d: %s", res.StatusCode(), res.String())
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIGNAL ID\tPRICE (x1e9)\tSTATUS")
	for _, p := range resp.Prices {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.SignalID, p.Price, p.Status)
	}
	return w.Flush()
}
