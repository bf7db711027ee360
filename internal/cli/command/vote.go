package command

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/votifier-go/internal/cli/connection"
	"github.com/yndnr/votifier-go/internal/core/domain"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
)

// VoteCommand returns the vote subcommand group.
func VoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "vote",
		Usage: "Send test votes",
		Subcommands: []*cli.Command{
			{
				Name:  "send",
				Usage: "Send one vote to a receiver",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Aliases: []string{"a"},
						Usage:   "Vote listener address (host:port)",
					},
					&cli.StringFlag{
						Name:    "protocol",
						Aliases: []string{"p"},
						Usage:   "Protocol version: v1 or v2",
						Value:   "v2",
					},
					&cli.StringFlag{
						Name:  "service",
						Usage: "Service name of the vote site",
					},
					&cli.StringFlag{
						Name:     "username",
						Aliases:  []string{"u"},
						Usage:    "Player name the vote is for",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "voter-address",
						Usage: "Address of the voter",
						Value: "127.0.0.1",
					},
					&cli.StringFlag{
						Name:  "timestamp",
						Usage: "Vote timestamp (default: now, unix milliseconds)",
					},
					&cli.StringFlag{
						Name:    "token",
						Aliases: []string{"t"},
						Usage:   "Service token for v2",
					},
					&cli.StringFlag{
						Name:  "public-key",
						Usage: "Path to the receiver's public.key for v1",
					},
					&cli.BoolFlag{
						Name:  "no-ack",
						Usage: "Do not wait for the v2 acknowledgement",
					},
				},
				Action: voteSend,
			},
		},
	}
}

// VoteResult is printed after a vote was sent.
type VoteResult struct {
	Addr         string      `json:"addr"`
	Protocol     string      `json:"protocol"`
	Greeting     string      `json:"greeting" table:"wide"`
	Acknowledged bool        `json:"acknowledged"`
	Vote         domain.Vote `json:"vote"`
}

func voteSend(c *cli.Context) error {
	p := profile(c)
	addr := stringOr(c, "addr", p.Vote.Addr)

	vote := domain.Vote{
		ServiceName: stringOr(c, "service", p.Vote.Service),
		Username:    c.String("username"),
		Address:     c.String("voter-address"),
		Timestamp:   c.String("timestamp"),
	}
	if vote.Timestamp == "" {
		vote.Timestamp = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	result := VoteResult{Addr: addr, Vote: vote}

	switch version := c.String("protocol"); version {
	case "v1", "1":
		pub, err := loadPublicKey(stringOr(c, "public-key", p.Vote.PublicKey))
		if err != nil {
			return err
		}
		client, err := connection.DialVote(ctx, addr, c.Duration("timeout"))
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.SendV1(vote, pub); err != nil {
			return err
		}
		result.Protocol = domain.ProtocolV1.String()
		result.Greeting = client.Greeting()

	case "v2", "2":
		secret := stringOr(c, "token", p.Vote.Token)
		if secret == "" {
			return errors.New("v2 votes need a service token (--token or vote.token in the profile)")
		}
		client, err := connection.DialVote(ctx, addr, c.Duration("timeout"))
		if err != nil {
			return err
		}
		defer client.Close()

		waitAck := !c.Bool("no-ack")
		if err := client.SendV2(vote, []byte(secret), waitAck); err != nil {
			return err
		}
		result.Protocol = domain.ProtocolV2.String()
		result.Greeting = client.Greeting()
		result.Acknowledged = waitAck

	default:
		return fmt.Errorf("unknown protocol %q (want v1 or v2)", version)
	}

	return render(c, result)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, errors.New("v1 votes need the receiver's public key (--public-key or vote.public_key in the profile)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	pub, err := keyfile.ParsePublicKeyText(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}
	return pub, nil
}
