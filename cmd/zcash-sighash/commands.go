package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/api"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/device"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/record"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/signer"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/txparse"
)

// newClient returns a client of an in-process device configured from the
// global options.
func newClient(s signer.Signer) (*api.Client, error) {
	id, err := branchID()
	if err != nil {
		return nil, err
	}
	log.Debugf("Device on branch %08x, at most %d records per kind", id, opts.MaxRecords)
	dev := device.New(device.Config{
		BranchID:   id,
		MaxRecords: opts.MaxRecords,
		Signer:     s,
	})
	return api.NewClient(api.Local{Device: dev}), nil
}

type decodeCommand struct {
	txOptions
}

func (c *decodeCommand) Execute(args []string) error {
	tx, coins, err := c.load()
	if err != nil {
		return err
	}
	chunks, err := tx.Chunks(coins)
	if err != nil {
		return err
	}

	env := tx.Envelope()
	fmt.Println("Transaction:")
	fmt.Printf("  Version:        %08x (group %08x)\n", env.Version, env.VersionGroupID)
	fmt.Printf("  Lock time:      %d\n", env.Fixed.LockTime)
	fmt.Printf("  Expiry height:  %d\n", env.Fixed.ExpiryHeight)
	fmt.Printf("  Value balance:  %d\n", tx.ValueBalance)
	fmt.Printf("  Records:        %d in, %d out, %d spends, %d outputs\n\n",
		env.TransparentInputs, env.TransparentOutputs, env.Spends, env.Outputs)

	fmt.Println("Chunks:")
	for i, ch := range chunks {
		fmt.Printf("  %3d  %-18s %-8s %4d bytes\n", i, ch.Kind, ch.Version, len(ch.Data))
	}
	return nil
}

type sighashCommand struct {
	txOptions
}

func (c *sighashCommand) Execute(args []string) error {
	tx, coins, err := c.load()
	if err != nil {
		return err
	}
	client, err := newClient(nil)
	if err != nil {
		return err
	}
	res, err := client.BuildPreimage(tx, coins)
	if err != nil {
		return err
	}
	fmt.Printf("Preimage: %x\n", res.Preimage)
	fmt.Printf("Sighash:  %x\n", res.Sighash)
	return nil
}

type signCommand struct {
	txOptions
	Keys []string `long:"key" required:"true" description:"WIF private key; the nth key gets handle n (repeatable)"`
}

func (c *signCommand) Execute(args []string) error {
	tx, coins, err := c.load()
	if err != nil {
		return err
	}
	if len(c.Keys) > 256 {
		return fmt.Errorf("at most 256 keys, got %d", len(c.Keys))
	}

	keys := signer.NewKeyring()
	defer keys.Wipe()
	for i, wif := range c.Keys {
		if err := keys.AddWIF(uint8(i), wif); err != nil {
			return fmt.Errorf("key %d: %w", i, err)
		}
	}
	handles, err := matchHandles(keys, len(c.Keys), coins)
	if err != nil {
		return err
	}

	client, err := newClient(keys)
	if err != nil {
		return err
	}
	res, err := client.SignTransaction(tx, coins, handles)
	if err != nil {
		return err
	}
	fmt.Printf("Sighash: %x\n", res.Sighash)
	for i, sig := range res.Signatures {
		fmt.Printf("Input %d (key %d): %x\n", i, handles[i], sig)
	}
	return nil
}

// matchHandles picks, for every coin, the key handle its script pays to.
func matchHandles(keys *signer.Keyring, n int, coins []txparse.Coin) ([]uint8, error) {
	handles := make([]uint8, len(coins))
next:
	for i, coin := range coins {
		for h := 0; h < n; h++ {
			pub, err := keys.PublicKey(uint8(h))
			if err != nil {
				return nil, err
			}
			if signer.PaysTo(coin.ScriptPubKey, pub) {
				handles[i] = uint8(h)
				continue next
			}
		}
		return nil, fmt.Errorf("no key for input %d script %x", i, coin.ScriptPubKey)
	}
	return handles, nil
}

type inspectCommand struct {
	Kind    string `long:"kind" required:"true" description:"Record kind, e.g. transparent-input, spend, output"`
	Version string `long:"version" required:"true" description:"Record version, e.g. compact, tx, legacy, current, extract, init"`
	Data    string `long:"data" required:"true" description:"Record bytes in hex"`
	Dump    bool   `long:"dump" description:"Dump the decoded record structure"`
}

func (c *inspectCommand) Execute(args []string) error {
	l, err := findLayout(c.Kind, c.Version)
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(c.Data)
	if err != nil {
		return fmt.Errorf("decoding record hex: %w", err)
	}
	rec, err := record.Extract(l.Kind, l.Version, data)
	if err != nil {
		return err
	}

	fmt.Printf("%s/%s (%d bytes)\n", l.Kind, l.Version, l.Length)
	for _, f := range l.Fields {
		b, err := rec.Bytes(f.Name)
		if err != nil {
			return err
		}
		fmt.Printf("  %-20s %x\n", f.Name, b)
	}
	if c.Dump {
		spew.Dump(rec)
	}
	return nil
}

// findLayout resolves kind and version names against the registered
// layouts.
func findLayout(kind, version string) (layout.Layout, error) {
	for _, l := range layout.All() {
		if strings.EqualFold(l.Kind.String(), kind) && strings.EqualFold(l.Version.String(), version) {
			return l, nil
		}
	}
	return layout.Layout{}, fmt.Errorf("no layout for %s/%s", kind, version)
}

type layoutCommand struct{}

func (c *layoutCommand) Execute(args []string) error {
	for _, l := range layout.All() {
		fmt.Printf("%s/%s: %d bytes\n", l.Kind, l.Version, l.Length)
		for _, f := range l.Fields {
			fmt.Printf("  %4d..%-4d %s\n", f.Offset, f.End(), f.Name)
		}
	}
	return nil
}

type versionCommand struct{}

func (c *versionCommand) Execute(args []string) error {
	client, err := newClient(nil)
	if err != nil {
		return err
	}
	v, err := client.GetVersion()
	if err != nil {
		return err
	}
	fmt.Println("zcash-sighash v0.1.0")
	fmt.Printf("Device application v%d.%d.%d\n", v[0], v[1], v[2])
	fmt.Println("Sapling v4 signature hashes per ZIP 243")
	return nil
}
