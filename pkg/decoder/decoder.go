// Package decoder drives a single signing session over a chunked Sapling
// transaction.
//
// The device cannot hold a whole transaction, so the host sends it one
// record at a time, each chunk tagged with its kind and wire version. The
// Decoder is an explicit state machine:
//
//	AwaitingHeader -> ReceivingTransparentInputs -> ReceivingTransparentOutputs
//	  -> ReceivingSpends -> ReceivingOutputs -> Complete
//
// with a terminal Aborted state reachable from every other state. Phases whose
// declared count is zero are skipped. Every error is terminal: once Aborted
// the session only answers SessionAborted until Reset.
//
// The Decoder exclusively owns the fixed-size preimage staging buffer for the
// lifetime of the session. Reset and abort both wipe it.
package decoder

import (
	"encoding/binary"

	"github.com/decred/slog"

	"github.com/suffix-labs/zcash-sapling-sighash/pkg/layout"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/record"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/sighash"
	"github.com/suffix-labs/zcash-sapling-sighash/pkg/status"
)

var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}

// MaxMoney is the largest amount, in zatoshi, a value balance may carry.
const MaxMoney = 21000000 * 100000000

// DefaultMaxRecords is the per-kind record capacity of a one-byte count.
const DefaultMaxRecords = 255

// State is a decoder state.
type State uint8

const (
	StateAwaitingHeader State = iota
	StateReceivingTransparentInputs
	StateReceivingTransparentOutputs
	StateReceivingSpends
	StateReceivingOutputs
	StateComplete
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingHeader:
		return "awaiting-header"
	case StateReceivingTransparentInputs:
		return "receiving-transparent-inputs"
	case StateReceivingTransparentOutputs:
		return "receiving-transparent-outputs"
	case StateReceivingSpends:
		return "receiving-spends"
	case StateReceivingOutputs:
		return "receiving-outputs"
	case StateComplete:
		return "complete"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// phase indexes the record phases in arrival order.
type phase int

const (
	phaseInputs phase = iota
	phaseOutputs
	phaseSpends
	phaseShieldedOutputs
	numPhases
)

var phaseStates = [numPhases]State{
	phaseInputs:          StateReceivingTransparentInputs,
	phaseOutputs:         StateReceivingTransparentOutputs,
	phaseSpends:          StateReceivingSpends,
	phaseShieldedOutputs: StateReceivingOutputs,
}

var phaseKinds = [numPhases]layout.Kind{
	phaseInputs:          layout.KindTransparentInput,
	phaseOutputs:         layout.KindTransparentOutput,
	phaseSpends:          layout.KindSpend,
	phaseShieldedOutputs: layout.KindOutput,
}

// contentCodes are the codes used for validator failures per phase.
var contentCodes = [numPhases]status.Code{
	phaseInputs:          status.CodePrevoutInvalid,
	phaseOutputs:         status.CodeOutputsInvalid,
	phaseSpends:          status.CodeSpendInvalid,
	phaseShieldedOutputs: status.CodeOutputContentInvalid,
}

// Chunk is one tagged piece of the transaction. Kind and Version are always
// supplied by the caller; the decoder never sniffs them from Data.
type Chunk struct {
	Kind    layout.Kind
	Version layout.Version
	Data    []byte
}

// Validator performs the content checks the caller delegates to the core,
// such as script well-formedness. Errors that are not *status.Error are
// reported with the content code of the record's kind.
type Validator interface {
	Validate(rec record.Record) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(rec record.Record) error

// Validate calls f(rec).
func (f ValidatorFunc) Validate(rec record.Record) error { return f(rec) }

// Observer receives every accepted record, in order.
type Observer interface {
	Observe(rec record.Record) error
}

// Config configures a Decoder.
type Config struct {
	// MaxRecords caps each declared count. Zero means DefaultMaxRecords.
	MaxRecords int

	// Validator, when set, checks every record after extraction.
	Validator Validator

	// Observer, when set, is fed every accepted record. If it also has a
	// Reset method it is reset with the decoder.
	Observer Observer
}

// Decoder is a single-session transaction decoder. It is not safe for
// concurrent use; the protocol is strictly request/response.
type Decoder struct {
	cfg Config

	state State
	cause error

	env  Envelope
	seen [numPhases]int

	// Running value balance of init-form shielded records; valid only while
	// every shielded record so far carried a value.
	balance      int64
	balanceKnown bool

	preimage sighash.Preimage
}

// New returns a decoder awaiting a header.
func New(cfg Config) *Decoder {
	if cfg.MaxRecords <= 0 || cfg.MaxRecords > DefaultMaxRecords {
		cfg.MaxRecords = DefaultMaxRecords
	}
	return &Decoder{cfg: cfg}
}

// State returns the current state.
func (d *Decoder) State() State { return d.state }

// Err returns the error that aborted the session, if any.
func (d *Decoder) Err() error { return d.cause }

// Envelope returns the accepted header. It is zero until a header arrives.
func (d *Decoder) Envelope() Envelope { return d.env }

// Received returns how many records of kind have been accepted.
func (d *Decoder) Received(kind layout.Kind) int {
	for p, k := range phaseKinds {
		if k == kind {
			return d.seen[p]
		}
	}
	return 0
}

// abort moves the session to Aborted, wipes the staging buffer and returns
// err unchanged.
func (d *Decoder) abort(err error) error {
	log.Debugf("Aborting session in state %s: %v", d.state, err)
	d.state = StateAborted
	d.cause = err
	d.preimage.Zero()
	return err
}

// closed returns the error for a call made after the session aborted.
func (d *Decoder) closed() error {
	return status.New(status.CodeSessionAborted, "session aborted: %v", d.cause)
}

// Feed processes one chunk.
func (d *Decoder) Feed(c Chunk) error {
	if d.state == StateAborted {
		return d.closed()
	}
	if c.Kind == layout.KindHeader {
		return d.feedHeader(c)
	}
	if d.state == StateAwaitingHeader {
		return d.abort(status.New(status.CodeTxNotInitialized, "%s record before header", c.Kind))
	}
	if d.state == StateComplete {
		return d.abort(status.New(status.CodeOutOfOrderRecord, "%s record after all %d declared records",
			c.Kind, d.env.Total()))
	}

	p := d.phase()
	if c.Kind != phaseKinds[p] {
		return d.abort(status.New(status.CodeOutOfOrderRecord, "%s record while %s (%d of %d received)",
			c.Kind, d.state, d.seen[p], d.env.count(p)))
	}

	rec, err := record.Extract(c.Kind, c.Version, c.Data)
	if err != nil {
		return d.abort(err)
	}
	if d.cfg.Validator != nil {
		if err := d.cfg.Validator.Validate(rec); err != nil {
			if status.CodeOf(err) == status.CodeUnknown {
				err = status.New(contentCodes[p], "%s %d: %v", c.Kind, d.seen[p], err)
			}
			return d.abort(err)
		}
	}
	if err := d.trackBalance(p, rec); err != nil {
		return d.abort(err)
	}
	if d.cfg.Observer != nil {
		if err := d.cfg.Observer.Observe(rec); err != nil {
			if status.CodeOf(err) == status.CodeUnknown {
				err = status.New(status.CodeExecutionError, "observing %s %d: %v", c.Kind, d.seen[p], err)
			}
			return d.abort(err)
		}
	}
	d.seen[p]++
	log.Tracef("Accepted %s/%s record %d of %d", c.Kind, c.Version, d.seen[p], d.env.count(p))
	d.advance()
	return nil
}

func (d *Decoder) feedHeader(c Chunk) error {
	if d.state != StateAwaitingHeader {
		return d.abort(status.New(status.CodeOutOfOrderRecord, "header while %s", d.state))
	}
	env, err := parseEnvelope(c.Version, c.Data, d.cfg.MaxRecords)
	if err != nil {
		return d.abort(err)
	}
	d.env = env
	d.balanceKnown = true
	d.preimage.Begin(env.Fixed)
	h := sighash.Header(env.Version, env.VersionGroupID)
	if err := d.preimage.Write(layout.RegionHeader, h[:]); err != nil {
		return d.abort(err)
	}

	log.Debugf("Session started: %d transparent inputs, %d transparent outputs, %d spends, %d outputs",
		env.TransparentInputs, env.TransparentOutputs, env.Spends, env.Outputs)
	d.state = StateReceivingTransparentInputs
	d.advance()
	return nil
}

// phase returns the record phase of the current receiving state.
func (d *Decoder) phase() phase {
	for p, s := range phaseStates {
		if s == d.state {
			return phase(p)
		}
	}
	return numPhases
}

// advance skips every phase whose declared count is satisfied.
func (d *Decoder) advance() {
	for p := d.phase(); p < numPhases; p++ {
		if d.seen[p] < d.env.count(p) {
			d.state = phaseStates[p]
			return
		}
	}
	d.state = StateComplete
	log.Debugf("All %d records received", d.env.Total())
}

// trackBalance keeps the spend-minus-output value sum while shielded records
// arrive in their init form. Each value is bounded by MaxMoney, so the sum of
// at most 2*DefaultMaxRecords values cannot overflow.
func (d *Decoder) trackBalance(p phase, rec record.Record) error {
	if p != phaseSpends && p != phaseShieldedOutputs {
		return nil
	}
	if rec.Version() != layout.VersionInit {
		d.balanceKnown = false
		return nil
	}
	v, err := rec.Uint64(layout.FieldValue)
	if err != nil {
		d.balanceKnown = false
		return nil
	}
	if v > MaxMoney {
		return status.New(status.CodeBadValueBalance, "%s %d value %d exceeds %d",
			rec.Kind(), d.seen[p], v, int64(MaxMoney))
	}
	if p == phaseSpends {
		d.balance += int64(v)
	} else {
		d.balance -= int64(v)
	}
	return nil
}

// ValueBalance returns the value balance implied by init-form shielded
// records, when every shielded record so far carried its value.
func (d *Decoder) ValueBalance() (int64, bool) {
	if d.state == StateAwaitingHeader || d.state == StateAborted {
		return 0, false
	}
	return d.balance, d.balanceKnown
}

// Finish checks that every declared record has arrived.
func (d *Decoder) Finish() error {
	switch d.state {
	case StateAborted:
		return d.closed()
	case StateComplete:
		return nil
	case StateAwaitingHeader:
		return d.abort(status.New(status.CodeTxNotInitialized, "finish before header"))
	}
	p := d.phase()
	return d.abort(status.New(status.CodeIncompleteTransaction, "%s: %d of %d received",
		d.state, d.seen[p], d.env.count(p)))
}

// Write writes a preimage region. The header region is written by the
// decoder itself when the envelope arrives.
func (d *Decoder) Write(r layout.Region, b []byte) error {
	switch d.state {
	case StateAborted:
		return d.closed()
	case StateAwaitingHeader:
		return d.abort(status.New(status.CodeTxNotInitialized, "write %s before header", r))
	}
	if err := d.preimage.Write(r, b); err != nil {
		return d.abort(err)
	}
	log.Tracef("Wrote region %s", r)
	return nil
}

// WriteValueBalance range-checks v and writes it to the value balance
// region. When the init-form records determine the balance, v must match it.
func (d *Decoder) WriteValueBalance(v int64) error {
	switch d.state {
	case StateAborted:
		return d.closed()
	case StateAwaitingHeader:
		return d.abort(status.New(status.CodeTxNotInitialized, "value balance before header"))
	}
	if v > MaxMoney || v < -MaxMoney {
		return d.abort(status.New(status.CodeBadValueBalance, "%d outside ±%d", v, int64(MaxMoney)))
	}
	if want, ok := d.ValueBalance(); ok && d.state == StateComplete && want != v {
		return d.abort(status.New(status.CodeBadValueBalance, "value balance %d, records imply %d", v, want))
	}
	b := sighash.EncodeValueBalance(v)
	return d.Write(layout.RegionValueBalance, b[:])
}

// Finalize returns the assembled preimage. The transaction must be complete
// and every region written.
func (d *Decoder) Finalize() ([sighash.Size]byte, error) {
	if err := d.Finish(); err != nil {
		return [sighash.Size]byte{}, err
	}
	out, err := d.preimage.Finalize()
	if err != nil {
		return out, d.abort(err)
	}
	if err := d.checkValueBalance(out); err != nil {
		return [sighash.Size]byte{}, d.abort(err)
	}
	log.Debugf("Preimage finalized")
	return out, nil
}

// checkValueBalance re-reads the value balance region of a finished
// preimage, which may have been written before the last shielded record or
// through Write.
func (d *Decoder) checkValueBalance(pre [sighash.Size]byte) error {
	f, err := layout.RegionField(layout.RegionValueBalance)
	if err != nil {
		return err
	}
	v := int64(binary.LittleEndian.Uint64(pre[f.Offset:f.End()]))
	if v > MaxMoney || v < -MaxMoney {
		return status.New(status.CodeBadValueBalance, "%d outside ±%d", v, int64(MaxMoney))
	}
	if want, ok := d.ValueBalance(); ok && want != v {
		return status.New(status.CodeBadValueBalance, "value balance %d, records imply %d", v, want)
	}
	return nil
}

// Missing returns the preimage regions not yet written.
func (d *Decoder) Missing() []layout.Region {
	return d.preimage.Missing()
}

// Reset wipes the staging buffer and all counters and returns to
// AwaitingHeader, ready for a new transaction.
func (d *Decoder) Reset() {
	d.preimage.Zero()
	d.state = StateAwaitingHeader
	d.cause = nil
	d.env = Envelope{}
	d.seen = [numPhases]int{}
	d.balance = 0
	d.balanceKnown = false
	if r, ok := d.cfg.Observer.(interface{ Reset() }); ok {
		r.Reset()
	}
	log.Tracef("Session reset")
}
