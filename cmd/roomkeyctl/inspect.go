package main

import (
	"fmt"

	"github.com/tos-network/roomcore/cryptoutil"
	"github.com/urfave/cli/v2"
)

var keyfileFlag = &cli.StringFlag{
	Name:     "keyfile",
	Usage:    "path to a keyfile written by the generate command",
	Required: true,
}

var commandInspect = &cli.Command{
	Name:  "inspect",
	Usage: "print a keyfile's server name, key id and public key",
	Flags: []cli.Flag{keyfileFlag},
	Action: func(ctx *cli.Context) error {
		kf, err := loadKeyfile(ctx.String(keyfileFlag.Name))
		if err != nil {
			fatalf("failed to read keyfile: %v", err)
		}
		pub, err := kf.publicKey()
		if err != nil {
			fatalf("malformed public key in keyfile: %v", err)
		}

		fmt.Println("Server name:", kf.ServerName)
		fmt.Println("Key ID:     ", kf.KeyID)
		fmt.Println("Public key (base64):", kf.PublicKey)
		fmt.Println("Public key (hex):   ", cryptoutil.Hex(pub))
		return nil
	},
}
