package main

import (
	"fmt"
	"os"

	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/urfave/cli/v2"
)

var (
	serverNameFlag = &cli.StringFlag{
		Name:     "server-name",
		Usage:    "this server's canonical name, e.g. matrix.example.org",
		Required: true,
	}
	keyIDFlag = &cli.StringFlag{
		Name:  "key-id",
		Usage: "signing key identifier",
		Value: "ed25519:1",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "keyfile path to write",
		Value: "signing.key.json",
	}
)

var commandGenerate = &cli.Command{
	Name:  "generate",
	Usage: "mint a new Ed25519 server signing key",
	Flags: []cli.Flag{serverNameFlag, keyIDFlag, outFlag},
	Action: func(ctx *cli.Context) error {
		path := ctx.String(outFlag.Name)
		if _, err := os.Stat(path); err == nil {
			fatalf("keyfile already exists at %s", path)
		}

		pub, priv, err := cryptoutil.GenerateKey()
		if err != nil {
			fatalf("failed to generate key: %v", err)
		}

		kf := &keyfile{
			ServerName: ctx.String(serverNameFlag.Name),
			KeyID:      ctx.String(keyIDFlag.Name),
			PublicKey:  cryptoutil.B64Encode(pub),
			PrivateKey: cryptoutil.B64Encode(priv),
		}
		if err := writeKeyfile(path, kf); err != nil {
			fatalf("failed to write keyfile: %v", err)
		}

		fmt.Println("Server name:", kf.ServerName)
		fmt.Println("Key ID:     ", kf.KeyID)
		fmt.Println("Public key: ", kf.PublicKey)
		fmt.Println("Keyfile:    ", path)
		return nil
	},
}
