package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/votifier-go/internal/cli/output"
	"github.com/yndnr/votifier-go/internal/infra/buildinfo"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show receiver health",
		Action: status,
	}
}

// Status combines /health and /ready.
type Status struct {
	Target            string `json:"target"`
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime"`
	Tokens            int    `json:"tokens"`
	KeyBits           int    `json:"key_bits"`
	ActiveConnections int    `json:"active_connections"`
}

func status(c *cli.Context) error {
	client, err := httpClient(c)
	if err != nil {
		return err
	}

	health, err := client.Health(c.Context)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	ready, err := client.Ready(c.Context)
	if err != nil {
		return fmt.Errorf("readiness check failed: %w", err)
	}

	st := Status{
		Target:            client.BaseURL(),
		Status:            health.Status,
		Ready:             ready,
		Version:           health.Version,
		Uptime:            health.Uptime,
		Tokens:            health.Tokens,
		KeyBits:           health.KeyBits,
		ActiveConnections: health.ActiveConnections,
	}

	if outputFormat(c) != output.FormatTable {
		return render(c, st)
	}

	w := c.App.Writer
	if st.Status == "ok" && st.Ready {
		fmt.Fprintf(w, "✓ Receiver is healthy\n")
	} else {
		fmt.Fprintf(w, "✗ Receiver is not ready (status %q)\n", st.Status)
	}
	fmt.Fprintf(w, "  Target:      %s\n", st.Target)
	fmt.Fprintf(w, "  Version:     %s\n", st.Version)
	fmt.Fprintf(w, "  Uptime:      %s\n", st.Uptime)
	fmt.Fprintf(w, "  Tokens:      %d\n", st.Tokens)
	fmt.Fprintf(w, "  Key size:    %d bits\n", st.KeyBits)
	fmt.Fprintf(w, "  Connections: %d\n", st.ActiveConnections)
	return nil
}

// MetricsCommand returns the metrics command.
func MetricsCommand() *cli.Command {
	return &cli.Command{
		Name:  "metrics",
		Usage: "Dump the receiver's Prometheus metrics",
		Action: func(c *cli.Context) error {
			client, err := httpClient(c)
			if err != nil {
				return err
			}
			text, err := client.Metrics(c.Context)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(c.App.Writer, text)
			return err
		},
	}
}

// VersionCommand returns the version command.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return render(c, buildinfo.Get())
		},
	}
}
