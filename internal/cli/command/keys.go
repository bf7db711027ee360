package command

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/votifier-go/internal/core/keystore"
	"github.com/yndnr/votifier-go/internal/server/config"
	"github.com/yndnr/votifier-go/internal/storage/keyfile"
	"github.com/yndnr/votifier-go/pkg/token"
)

func keyDirFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Key directory of the receiver",
			Value:   config.DefaultKeysDir,
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "Passphrase sealing private.key",
			EnvVars: []string{"VOTIFIER_KEYS_PASSPHRASE"},
		},
	}
}

// KeysCommand returns the keys subcommand group.
func KeysCommand() *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Manage the receiver's RSA key pair",
		Subcommands: []*cli.Command{
			{
				Name:    "generate",
				Aliases: []string{"gen"},
				Usage:   "Generate a key pair into the key directory",
				Flags: append(keyDirFlags(),
					&cli.IntFlag{
						Name:  "bits",
						Usage: "RSA modulus size",
						Value: keystore.DefaultKeyBits,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Replace an existing key pair",
					},
				),
				Action: keysGenerate,
			},
			{
				Name:   "show",
				Usage:  "Print the public key to paste into a vote site",
				Flags:  keyDirFlags(),
				Action: keysShow,
			},
		},
	}
}

// KeyInfo describes a public key.
type KeyInfo struct {
	Path        string `json:"path"`
	Bits        int    `json:"bits"`
	Fingerprint string `json:"fingerprint"`
	PublicKey   string `json:"public_key"`
	Created     bool   `json:"created,omitempty" table:"wide"`
}

func keyInfo(path string, pub *rsa.PublicKey) (KeyInfo, error) {
	der, err := keyfile.EncodePublicKey(pub)
	if err != nil {
		return KeyInfo{}, err
	}
	return KeyInfo{
		Path:        path,
		Bits:        pub.N.BitLen(),
		Fingerprint: token.Fingerprint(der),
		PublicKey:   base64.StdEncoding.EncodeToString(der),
	}, nil
}

func keysGenerate(c *cli.Context) error {
	bits := c.Int("bits")
	if bits < 1024 || bits%8 != 0 {
		return fmt.Errorf("invalid key size %d (want >= 1024 and a multiple of 8)", bits)
	}

	dir := keyfile.NewDir(c.String("dir"), []byte(c.String("passphrase")))
	if _, err := dir.LoadPublicKey(); err == nil && !c.Bool("force") {
		return fmt.Errorf("key pair already exists in %s (use --force to replace it)", dir.Path())
	} else if err != nil && !errors.Is(err, keystore.ErrNotFound) && !c.Bool("force") {
		return err
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	if err := dir.SaveKeyPair(c.Context, priv); err != nil {
		return err
	}

	info, err := keyInfo(dir.PublicKeyPath(), &priv.PublicKey)
	if err != nil {
		return err
	}
	info.Created = true
	return render(c, info)
}

func keysShow(c *cli.Context) error {
	dir := keyfile.NewDir(c.String("dir"), nil)
	pub, err := dir.LoadPublicKey()
	if errors.Is(err, keystore.ErrNotFound) {
		return fmt.Errorf("no public key in %s (run `keys generate` or start the server once)", dir.Path())
	}
	if err != nil {
		return err
	}

	info, err := keyInfo(dir.PublicKeyPath(), pub)
	if err != nil {
		return err
	}
	return render(c, info)
}
