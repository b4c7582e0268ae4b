package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/decred/slog"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/decoder"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/device"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/txparse"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/zip243"
)

// globalOptions are accepted before any subcommand.
type globalOptions struct {
	DebugLevel string `short:"d" long:"debuglevel" default:"info" description:"Logging level {trace, debug, info, warn, error, critical, off}"`
	BranchID   string `long:"branch-id" default:"sapling" description:"Consensus branch: sapling, blossom, heartwood, canopy or a hex id"`
	MaxRecords int    `long:"max-records" default:"255" description:"Per-kind record capacity of the device session"`
}

var opts globalOptions

var (
	backend = slog.NewBackend(os.Stderr)
	log     = backend.Logger("MAIN")
)

// subsystemLoggers maps each subsystem tag to its package logger hook.
var subsystemLoggers = map[string]func(slog.Logger){
	"DECO": decoder.UseLogger,
	"DEVC": device.UseLogger,
}

// setupLogging creates a logger per subsystem at the configured level.
func setupLogging() error {
	level, ok := slog.LevelFromString(opts.DebugLevel)
	if !ok {
		return fmt.Errorf("invalid debug level %q", opts.DebugLevel)
	}
	log.SetLevel(level)
	for tag, use := range subsystemLoggers {
		l := backend.Logger(tag)
		l.SetLevel(level)
		use(l)
	}
	return nil
}

var branchIDs = map[string]uint32{
	"sapling":   zip243.SaplingBranchID,
	"blossom":   zip243.BlossomBranchID,
	"heartwood": zip243.HeartwoodBranchID,
	"canopy":    zip243.CanopyBranchID,
}

// branchID resolves --branch-id.
func branchID() (uint32, error) {
	if id, ok := branchIDs[strings.ToLower(opts.BranchID)]; ok {
		return id, nil
	}
	id, err := strconv.ParseUint(strings.TrimPrefix(opts.BranchID, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid branch id %q", opts.BranchID)
	}
	return uint32(id), nil
}

// txOptions are shared by the commands that take a transaction.
type txOptions struct {
	Tx     string   `long:"tx" description:"Raw v4 transaction in hex"`
	TxFile string   `long:"tx-file" description:"File holding the raw v4 transaction in hex"`
	Coins  []string `long:"coin" description:"Coin spent by the next transparent input, as value:scriptPubKeyHex (repeatable)"`
}

// load parses the transaction and the coins it spends.
func (o *txOptions) load() (*txparse.Tx, []txparse.Coin, error) {
	raw := o.Tx
	if o.TxFile != "" {
		b, err := os.ReadFile(o.TxFile)
		if err != nil {
			return nil, nil, err
		}
		raw = string(b)
	}
	if raw == "" {
		return nil, nil, fmt.Errorf("one of --tx or --tx-file is required")
	}
	b, err := hex.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding transaction hex: %w", err)
	}
	tx, err := txparse.ParseV4(b)
	if err != nil {
		return nil, nil, err
	}

	coins := make([]txparse.Coin, 0, len(o.Coins))
	for _, s := range o.Coins {
		c, err := parseCoin(s)
		if err != nil {
			return nil, nil, err
		}
		coins = append(coins, c)
	}
	return tx, coins, nil
}

// parseCoin parses value:scriptPubKeyHex.
func parseCoin(s string) (txparse.Coin, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return txparse.Coin{}, fmt.Errorf("coin %q is not value:script", s)
	}
	value, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return txparse.Coin{}, fmt.Errorf("coin value %q: %w", parts[0], err)
	}
	script, err := hex.DecodeString(parts[1])
	if err != nil {
		return txparse.Coin{}, fmt.Errorf("coin script %q: %w", parts[1], err)
	}
	return txparse.Coin{Value: value, ScriptPubKey: script}, nil
}
