// Package interact implements the public flows of the engine: writing an
// interaction to the ledger, simulating it, and reading a value out of a
// contract.
//
// Every flow goes through the same sequence: resolve the contract record,
// resolve the current state, resolve the caller address, build the
// interaction transaction, synthesize the transaction context from the
// network head, and invoke the transition function. Building a real
// transaction even for the read-only flows guarantees that the dry run
// exercises byte-identical tag and input encoding to a committed write.
//
// The dry-run flows never touch the ledger write path. This is a hard
// invariant: dry runs are used for state inspection by callers that must not
// cause side effects.
//
// Documentation Last Review: 30.08.2026
package interact

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/loomledger/loom"
	"github.com/loomledger/loom/core/contract"
	"github.com/loomledger/loom/core/execution"
	"github.com/loomledger/loom/core/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

// ErrRejected indicates that the contract refused the interaction during a
// read flow, where there is no outcome to carry the rejection.
var ErrRejected = xerrors.New("interaction rejected")

// defines prometheus metrics
var (
	promInteractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_interactions_total",
		Help: "total number of interaction flows executed",
	}, []string{"flow"})

	promRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loom_interaction_rejections_total",
		Help: "total number of interactions rejected by contract code",
	})
)

func init() {
	loom.PromCollectors = append(loom.PromCollectors, promInteractions, promRejections)
}

// WriteResult is the tagged outcome of the write flow. A declined submission
// is reported here, not as an error, leaving retry policy to the caller.
type WriteResult struct {
	// ID is the identifier of the submitted transaction.
	ID string

	// Accepted is true when the ledger reported a success status.
	Accepted bool

	// Status is the status code returned by the ledger.
	Status int
}

// Executor orchestrates the interaction flows against loaded contracts. It
// caches the records it loads; an executor can be shared across goroutines,
// the per-record serialization lives in the execution environment.
type Executor struct {
	sync.Mutex

	client  ledger.Client
	states  ledger.StateProvider
	loader  *contract.Loader
	records map[string]*contract.Record
}

// NewExecutor creates a new executor using the loader to materialize
// contracts and the state provider to resolve their current states.
func NewExecutor(client ledger.Client, states ledger.StateProvider, loader *contract.Loader) *Executor {
	return &Executor{
		client:  client,
		states:  states,
		loader:  loader,
		records: make(map[string]*contract.Record),
	}
}

// Write builds the interaction transaction, evaluates it locally, and submits
// it to the ledger. A submission that does not report success is signalled in
// the result, not by an error. A fault of the contract code aborts the flow
// before anything is submitted.
func (e *Executor) Write(ctx context.Context, key ledger.Key, contractID string,
	input any, opts ...Option) (WriteResult, error) {

	promInteractions.WithLabelValues("write").Inc()

	tmpl := template{}
	for _, opt := range opts {
		opt(&tmpl)
	}

	tx, outcome, err := e.run(ctx, key, contractID, input, tmpl)
	if err != nil {
		return WriteResult{}, err
	}

	if outcome.Rejected {
		loom.Logger.Debug().
			Str("contract", contractID).
			Str("message", outcome.Message).
			Msg("submitting interaction rejected by local evaluation")
	}

	status, err := e.client.Post(ctx, tx)
	if err != nil {
		return WriteResult{}, xerrors.Errorf("couldn't post transaction: %v", err)
	}

	res := WriteResult{
		ID:       tx.ID,
		Accepted: status.Code == http.StatusOK || status.Code == http.StatusAlreadyReported,
		Status:   status.Code,
	}

	return res, nil
}

// DryWrite evaluates the effect of the interaction without submitting
// anything, and returns the full outcome.
func (e *Executor) DryWrite(ctx context.Context, key ledger.Key, contractID string,
	input any, opts ...Option) (execution.Outcome, error) {

	promInteractions.WithLabelValues("dry-write").Inc()

	tmpl := template{}
	for _, opt := range opts {
		opt(&tmpl)
	}

	_, outcome, err := e.run(ctx, key, contractID, input, tmpl)
	if err != nil {
		return execution.Outcome{}, err
	}

	return outcome, nil
}

// DryWriteCustom evaluates an already-built transaction under the given
// caller address, bypassing transaction construction entirely.
func (e *Executor) DryWriteCustom(ctx context.Context, tx ledger.Transaction,
	caller string, contractID string, input any) (execution.Outcome, error) {

	promInteractions.WithLabelValues("dry-write-custom").Inc()

	rec, err := e.record(ctx, contractID)
	if err != nil {
		return execution.Outcome{}, err
	}

	state, err := e.states.CurrentState(ctx, contractID)
	if err != nil {
		return execution.Outcome{}, xerrors.Errorf("couldn't resolve state: %v", err)
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return execution.Outcome{}, xerrors.Errorf("couldn't encode input: %v", err)
	}

	txctx, err := e.synthesize(ctx, tx)
	if err != nil {
		return execution.Outcome{}, err
	}

	return e.invoke(ctx, rec, state, execution.Interaction{
		Input:  encoded,
		Caller: caller,
	}, txctx)
}

// Read evaluates the interaction and returns only the return value of the
// transition function. Nothing is submitted.
func (e *Executor) Read(ctx context.Context, key ledger.Key, contractID string,
	input any, opts ...Option) (json.RawMessage, error) {

	promInteractions.WithLabelValues("read").Inc()

	tmpl := template{}
	for _, opt := range opts {
		opt(&tmpl)
	}

	_, outcome, err := e.run(ctx, key, contractID, input, tmpl)
	if err != nil {
		return nil, err
	}

	if outcome.Rejected {
		return nil, xerrors.Errorf("%s: %w", outcome.Message, ErrRejected)
	}

	return outcome.Result, nil
}

// run is the shared core of the flows: record, state, caller, transaction,
// synthetic context, invocation.
func (e *Executor) run(ctx context.Context, key ledger.Key, contractID string,
	input any, tmpl template) (ledger.Transaction, execution.Outcome, error) {

	if !truthy(input) {
		return ledger.Transaction{}, execution.Outcome{},
			xerrors.Errorf("input is falsy: %w", ErrInvalidInput)
	}

	rec, err := e.record(ctx, contractID)
	if err != nil {
		return ledger.Transaction{}, execution.Outcome{}, err
	}

	state := tmpl.state
	if state == nil {
		state, err = e.states.CurrentState(ctx, contractID)
		if err != nil {
			return ledger.Transaction{}, execution.Outcome{},
				xerrors.Errorf("couldn't resolve state: %v", err)
		}
	}

	caller := tmpl.caller
	if caller == "" {
		caller, err = e.client.Address(ctx, key)
		if err != nil {
			return ledger.Transaction{}, execution.Outcome{},
				xerrors.Errorf("couldn't resolve caller: %v", err)
		}
	}

	tx, err := buildInteraction(ctx, e.client, key, contractID, input, tmpl)
	if err != nil {
		return ledger.Transaction{}, execution.Outcome{}, err
	}

	txctx, err := e.synthesize(ctx, tx)
	if err != nil {
		return ledger.Transaction{}, execution.Outcome{}, err
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return ledger.Transaction{}, execution.Outcome{},
			xerrors.Errorf("couldn't encode input: %v", err)
	}

	outcome, err := e.invoke(ctx, rec, state, execution.Interaction{
		Input:  encoded,
		Caller: caller,
	}, txctx)
	if err != nil {
		return ledger.Transaction{}, execution.Outcome{}, err
	}

	return tx, outcome, nil
}

func (e *Executor) invoke(ctx context.Context, rec *contract.Record,
	state json.RawMessage, action execution.Interaction,
	txctx execution.TransactionContext) (execution.Outcome, error) {

	outcome, err := rec.Env.Invoke(ctx, state, action, txctx)
	if err != nil {
		return execution.Outcome{}, xerrors.Errorf("execution: %v", err)
	}

	if outcome.Rejected {
		promRejections.Inc()
	}

	return outcome, nil
}

// synthesize builds the transaction context of an unmined transaction from
// the current network head. The timestamp stays nil as the block is not
// mined yet; replay replaces it with the real block data once committed.
func (e *Executor) synthesize(ctx context.Context, tx ledger.Transaction) (execution.TransactionContext, error) {
	info, err := e.client.GetNetworkInfo(ctx)
	if err != nil {
		return execution.TransactionContext{}, xerrors.Errorf("couldn't fetch network info: %v", err)
	}

	owner := tx.OwnerAddress
	if owner == "" {
		owner = tx.Owner
	}

	txctx := execution.TransactionContext{
		ID:       tx.ID,
		Owner:    owner,
		Target:   tx.Target,
		Quantity: tx.Quantity,
		Reward:   tx.Reward,
		Tags:     tx.Tags,
		Block: execution.BlockContext{
			Height: info.Height,
			ID:     info.Current,
		},
	}

	return txctx, nil
}

// record returns the cached record of the contract, loading it on first use.
func (e *Executor) record(ctx context.Context, contractID string) (*contract.Record, error) {
	e.Lock()
	rec, ok := e.records[contractID]
	e.Unlock()

	if ok {
		return rec, nil
	}

	rec, err := e.loader.Load(ctx, contractID)
	if err != nil {
		return nil, xerrors.Errorf("couldn't load contract: %w", err)
	}

	e.Lock()
	// A concurrent load of the same contract may have won the race; keep the
	// first record so every caller shares one environment.
	if existing, ok := e.records[contractID]; ok {
		rec = existing
	} else {
		e.records[contractID] = rec
	}
	e.Unlock()

	return rec, nil
}
