// Package contract implements the loader that materializes a ledger-resident
// contract into an executable record.
//
// A contract is defined by a transaction whose tags point at the source
// transaction and at the initial state. The loader resolves both, builds the
// sandboxed execution environment for the source, and returns the composite
// record. Records are immutable and may be reused for any number of
// invocations against the same contract.
//
// Documentation Last Review: 30.08.2026
package contract

import (
	"context"
	"encoding/json"

	"github.com/loomledger/loom"
	"github.com/loomledger/loom/core/contract/cache"
	"github.com/loomledger/loom/core/execution"
	"github.com/loomledger/loom/core/ledger"
	"github.com/loomledger/loom/core/tags"
	"golang.org/x/xerrors"
)

var (
	// ErrNotFound indicates that the defining transaction, or a transaction
	// it references, could not be fetched from the ledger.
	ErrNotFound = xerrors.New("contract not found")

	// ErrLoad indicates that the contract definition is unusable: missing
	// source, missing initial state, or source that fails to evaluate.
	ErrLoad = xerrors.New("contract load failed")
)

// Record is a loaded contract. It is created by the loader and never
// persisted; the environment owns the sandbox of the source.
type Record struct {
	// ID is the identifier of the defining transaction.
	ID string

	// Source is the contract source text.
	Source string

	// InitState is the raw initial state of the contract.
	InitState json.RawMessage

	// MinFee is the optional minimum fee the contract demands from
	// interactions, in the smallest fee unit.
	MinFee string

	// DefiningTx is the transaction that defines the contract.
	DefiningTx ledger.Transaction

	// Env evaluates interactions against the contract source.
	Env execution.Environment
}

// LoaderOption is the type of options to create a loader.
type LoaderOption func(*Loader)

// WithCache is an option to consult and fill a transaction cache during
// loads, so that repeated loads of the same contract do not refetch.
func WithCache(c cache.Cache) LoaderOption {
	return func(ldr *Loader) {
		ldr.cache = c
	}
}

// Loader fetches contract definitions from the ledger and builds their
// execution environments.
type Loader struct {
	client ledger.Client
	build  execution.Builder
	cache  cache.Cache
}

// NewLoader creates a new loader using the given builder for the execution
// environments.
func NewLoader(client ledger.Client, build execution.Builder, opts ...LoaderOption) *Loader {
	ldr := &Loader{
		client: client,
		build:  build,
	}

	for _, opt := range opts {
		opt(ldr)
	}

	return ldr
}

// Load fetches the contract definition and returns the executable record. It
// resolves the initial state with the priority order: inline tag, referenced
// state transaction, payload of the defining transaction.
func (ldr *Loader) Load(ctx context.Context, contractID string) (*Record, error) {
	definingTx, err := ldr.fetch(ctx, contractID)
	if err != nil {
		return nil, xerrors.Errorf("defining transaction: %v: %w", err, ErrNotFound)
	}

	defined, err := tags.Unpack(definingTx)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode tags: %v: %w", err, ErrLoad)
	}

	srcID, ok := defined.Get(tags.TagContractSrc)
	if !ok {
		return nil, xerrors.Errorf("missing source tag: %w", ErrLoad)
	}

	srcTx, err := ldr.fetch(ctx, srcID)
	if err != nil {
		return nil, xerrors.Errorf("source transaction: %v: %w", err, ErrNotFound)
	}

	source := string(srcTx.Data)
	if source == "" {
		return nil, xerrors.Errorf("empty contract source: %w", ErrLoad)
	}

	initState, err := ldr.resolveInitState(ctx, definingTx, defined)
	if err != nil {
		return nil, err
	}

	minFee, _ := defined.Get(tags.TagMinFee)

	env, err := ldr.build(source, contractID)
	if err != nil {
		return nil, xerrors.Errorf("%v: %w", err, ErrLoad)
	}

	loom.Logger.Debug().
		Str("contract", contractID).
		Str("source", srcID).
		Msg("contract loaded")

	record := &Record{
		ID:         contractID,
		Source:     source,
		InitState:  initState,
		MinFee:     minFee,
		DefiningTx: definingTx,
		Env:        env,
	}

	return record, nil
}

// resolveInitState picks the initial state of the contract. The three-way
// fallback lets an author choose inline or out-of-band state storage without
// changing anything downstream.
func (ldr *Loader) resolveInitState(ctx context.Context,
	definingTx ledger.Transaction, defined tags.Map) (json.RawMessage, error) {

	if inline, ok := defined.Get(tags.TagInitState); ok {
		return json.RawMessage(inline), nil
	}

	if stateID, ok := defined.Get(tags.TagInitStateTX); ok {
		stateTx, err := ldr.fetch(ctx, stateID)
		if err != nil {
			return nil, xerrors.Errorf("state transaction: %v: %w", err, ErrNotFound)
		}

		return json.RawMessage(stateTx.Data), nil
	}

	if len(definingTx.Data) == 0 {
		return nil, xerrors.Errorf("missing initial state: %w", ErrLoad)
	}

	return json.RawMessage(definingTx.Data), nil
}

// fetch returns the transaction, going through the cache when one is set.
func (ldr *Loader) fetch(ctx context.Context, id string) (ledger.Transaction, error) {
	if ldr.cache != nil {
		if tx, ok := ldr.cache.Get(id); ok {
			return tx, nil
		}
	}

	tx, err := ldr.client.GetTransaction(ctx, id)
	if err != nil {
		return ledger.Transaction{}, xerrors.Errorf("couldn't fetch '%s': %v", id, err)
	}

	if ldr.cache != nil {
		err = ldr.cache.Set(tx)
		if err != nil {
			loom.Logger.Warn().Err(err).Str("tx", id).Msg("couldn't cache transaction")
		}
	}

	return tx, nil
}
