package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ds-codi/pm-supervisor/internal/client"
	"github.com/ds-codi/pm-supervisor/internal/control"
)

func statusCmd(socketPath, tcpAddr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print service status and attached clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*socketPath, *tcpAddr)
			return printStatus(os.Stdout, c)
		},
	}
}

func printStatus(out io.Writer, c *client.Client) error {
	records, err := c.Status()
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	clients, err := c.ListClients()
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}

	writeServiceTable(out, records)
	fmt.Fprintln(out)
	writeClientTable(out, clients)
	return nil
}

func writeServiceTable(out io.Writer, records []control.ServiceRecord) {
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATUS\tBACKEND\tENDPOINT")
	for _, rec := range records {
		backend := "-"
		if rec.Backend != nil {
			backend = string(*rec.Backend)
		}
		endpoint := "-"
		if rec.Endpoint != nil {
			endpoint = *rec.Endpoint
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rec.Name, rec.Status, backend, endpoint)
	}
	w.Flush()
}

func writeClientTable(out io.Writer, clients []control.ClientAttachment) {
	if len(clients) == 0 {
		fmt.Fprintln(out, "no attached clients")
		return
	}
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tPID\tWINDOW\tATTACHED")
	for _, att := range clients {
		attachedAt := time.UnixMilli(att.AttachedAt).Format(time.RFC3339)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", att.ClientID, att.PID, att.WindowID, attachedAt)
	}
	w.Flush()
}
