// Command roomkeyctl is the operator CLI for the server-key store and
// event signing primitives: minting a server signing key, inspecting a
// keyfile, and checking a PDU's content hash and signatures.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

var app = &cli.App{
	Name:  "roomkeyctl",
	Usage: "manage federation signing keys and verify PDUs",
	Commands: []*cli.Command{
		commandGenerate,
		commandInspect,
		commandVerifyEvent,
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
