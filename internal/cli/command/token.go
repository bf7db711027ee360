package command

import (
	"errors"
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/server/config"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
	"github.com/yndnr/votifier-go/pkg/token"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	dirFlag := &cli.StringFlag{
		Name:    "dir",
		Aliases: []string{"d"},
		Usage:   "Key directory holding tokens.yml",
		Value:   config.DefaultKeysDir,
	}

	return &cli.Command{
		Name:  "token",
		Usage: "Manage v2 service tokens in a key directory",
		Subcommands: []*cli.Command{
			{
				Name:      "new",
				Usage:     "Generate a token for a vote site",
				ArgsUsage: "SERVICE_NAME",
				Flags: []cli.Flag{
					dirFlag,
					&cli.IntFlag{
						Name:  "length",
						Usage: "Random bytes in the token",
						Value: token.DefaultLength,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Replace an existing token",
					},
				},
				Action: tokenNew,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List configured service tokens",
				Flags: []cli.Flag{
					dirFlag,
					&cli.BoolFlag{
						Name:  "show-secrets",
						Usage: "Print token values instead of fingerprints only",
					},
				},
				Action: tokenList,
			},
		},
	}
}

// TokenInfo describes one service token.
type TokenInfo struct {
	Service     string `json:"service"`
	Fingerprint string `json:"fingerprint"`
	Token       string `json:"token,omitempty"`
}

func tokenNew(c *cli.Context) error {
	service := c.Args().First()
	if service == "" {
		service = keystore.DefaultTokenName
	}

	dir := keyfile.NewDir(c.String("dir"), nil)
	tokens, err := dir.LoadTokens(c.Context)
	if err != nil && !errors.Is(err, keystore.ErrNotFound) {
		return err
	}
	if tokens == nil {
		tokens = make(map[string]string)
	}
	if _, exists := tokens[service]; exists && !c.Bool("force") {
		return fmt.Errorf("token for %q already exists (use --force to replace it)", service)
	}

	if c.Int("length") < 8 {
		return fmt.Errorf("token length %d is too short (minimum 8 bytes)", c.Int("length"))
	}
	secret, err := token.GenerateWithLength(c.Int("length"))
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	tokens[service] = secret
	if err := dir.SaveTokens(c.Context, tokens); err != nil {
		return err
	}

	return render(c, TokenInfo{
		Service:     service,
		Fingerprint: token.Fingerprint([]byte(secret)),
		Token:       secret,
	})
}

func tokenList(c *cli.Context) error {
	dir := keyfile.NewDir(c.String("dir"), nil)
	tokens, err := dir.LoadTokens(c.Context)
	if errors.Is(err, keystore.ErrNotFound) {
		return fmt.Errorf("no tokens in %s", dir.TokensPath())
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]TokenInfo, 0, len(names))
	for _, name := range names {
		info := TokenInfo{Service: name, Fingerprint: token.Fingerprint([]byte(tokens[name]))}
		if c.Bool("show-secrets") {
			info.Token = tokens[name]
		}
		list = append(list, info)
	}
	return render(c, list)
}
