package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/votifier-go/internal/cli/config"
	"github.com/yndnr/votifier-go/internal/cli/connection"
	"github.com/yndnr/votifier-go/internal/cli/output"
	"github.com/yndnr/votifier-go/internal/infra/buildinfo"
	"github.com/yndnr/votifier-go/internal/infra/tlsroots"
)

const profileKey = "profile"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "votifier-cli",
		Usage:   "Send test votes to and inspect a votifier receiver",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			VoteCommand(),
			KeysCommand(),
			TokenCommand(),
			VotesCommand(),
			StatusCommand(),
			MetricsCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load cli config: %w", err)
			}
			if c.App.Metadata == nil {
				c.App.Metadata = make(map[string]any)
			}
			c.App.Metadata[profileKey] = cfg
			return nil
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "CLI profile path (default ~/.votifier/cli.yaml)",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Admin HTTP endpoint of the receiver (e.g. 127.0.0.1:8193)",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "PEM bundle trusted for an https admin endpoint",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip TLS verification of the admin endpoint",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Network timeout",
			Value: 10 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// profile returns the loaded CLI profile, or the defaults when Before did
// not run.
func profile(c *cli.Context) *config.CLIConfig {
	if cfg, ok := c.App.Metadata[profileKey].(*config.CLIConfig); ok {
		return cfg
	}
	return config.Default()
}

// stringOr returns the flag value when set on the command line, else
// fallback.
func stringOr(c *cli.Context, name, fallback string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	return fallback
}

// httpClient builds the admin endpoint client from flags and profile.
func httpClient(c *cli.Context) (*connection.HTTPClient, error) {
	p := profile(c)
	server := stringOr(c, "server", p.HTTP.Server)
	caFile := stringOr(c, "ca-file", p.HTTP.CAFile)
	insecure := c.Bool("insecure") || p.HTTP.Insecure

	opts := []connection.HTTPOption{connection.WithTimeout(c.Duration("timeout"))}
	if caFile != "" || insecure || strings.HasPrefix(server, "https://") {
		tlsCfg, err := tlsroots.ClientConfig(caFile, insecure)
		if err != nil {
			return nil, fmt.Errorf("tls config: %w", err)
		}
		opts = append(opts, connection.WithTLSConfig(tlsCfg))
		if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
			server = "https://" + server
		}
	}
	return connection.NewHTTPClient(server, opts...), nil
}

// render writes data in the selected output format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(stringOr(c, "output", profile(c).Output))
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

// outputFormat reports the selected format, for commands that print a
// human summary in table mode.
func outputFormat(c *cli.Context) output.Format {
	format, err := output.ParseFormat(stringOr(c, "output", profile(c).Output))
	if err != nil {
		return output.FormatTable
	}
	return format
}
