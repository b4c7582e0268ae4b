// zcash-sighash CLI - Sapling signature hash tool
//
// This CLI drives an in-process signing device over the same APDU protocol
// a hardware wallet speaks. It decodes v4 transactions into device records,
// assembles the ZIP 243 preimage, and signs transparent inputs.
//
// Example usage:
//   # Show the records a transaction streams to the device
//   zcash-sighash decode --tx <hex> --coin 50000:76a914...88ac
//
//   # Compute the preimage and signature hash
//   zcash-sighash sighash --tx <hex> --coin 50000:76a914...88ac
//
//   # Sign every transparent input
//   zcash-sighash sign --tx <hex> --coin 50000:76a914...88ac --key <wif>
//
//   # Inspect one record
//   zcash-sighash inspect --kind spend --version legacy --data <hex> --dump
package main

import (
	"errors"
	"os"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	parser.Name = "zcash-sighash"
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if err := setupLogging(); err != nil {
			return err
		}
		if cmd == nil {
			return nil
		}
		return cmd.Execute(args)
	}

	commands := []struct {
		name, short, long string
		data              interface{}
	}{
		{"decode", "Show the device records of a transaction", "Parses a raw v4 transaction and lists the chunks streamed to the device.", &decodeCommand{}},
		{"sighash", "Compute the preimage and signature hash", "Runs a device session for a raw v4 transaction and prints the ZIP 243 preimage and signature hash.", &sighashCommand{}},
		{"sign", "Sign transparent inputs", "Runs a device session with the given WIF keys and signs every transparent input.", &signCommand{}},
		{"inspect", "Decode one record", "Extracts a single record of the given kind and version and prints its fields.", &inspectCommand{}},
		{"layout", "List registered record layouts", "Prints the wire length and fields of every registered (kind, version) layout.", &layoutCommand{}},
		{"version", "Show version information", "Prints the CLI and device application versions.", &versionCommand{}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			log.Criticalf("Registering %s: %v", c.name, err)
			os.Exit(1)
		}
	}

	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		// Parse already printed the error.
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
