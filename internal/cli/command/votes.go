package command

import (
	"github.com/urfave/cli/v2"
)

// VotesCommand returns the votes subcommand group.
func VotesCommand() *cli.Command {
	return &cli.Command{
		Name:  "votes",
		Usage: "Inspect the vote journal of a running receiver",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List recently received votes, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of votes",
						Value:   20,
					},
				},
				Action: votesList,
			},
		},
	}
}

func votesList(c *cli.Context) error {
	client, err := httpClient(c)
	if err != nil {
		return err
	}
	votes, err := client.Votes(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	return render(c, votes)
}
