// Package execution defines the primitives to execute a contract's transition
// function.
//
// A contract exposes a single entry point that maps a state value and an
// interaction to a new state value, optionally with a return value. The
// environment that evaluates the entry point is built once per contract and
// invoked any number of times; each invocation receives the description of
// the transaction causing it as an explicit argument so that nothing leaks
// from one invocation to the next.
package execution

import (
	"context"
	"encoding/json"

	"github.com/loomledger/loom/core/ledger"
)

// BlockContext describes the block a transaction belongs to. Timestamp is nil
// for a transaction that is not mined yet, as is the case during a dry run.
type BlockContext struct {
	Height    int64
	ID        string
	Timestamp *int64
}

// TransactionContext describes the transaction currently causing an
// invocation, as contract code observes it.
type TransactionContext struct {
	ID       string
	Owner    string
	Target   string
	Quantity string
	Reward   string
	Tags     []ledger.Tag
	Block    BlockContext
}

// Interaction is the input handed to the transition function.
type Interaction struct {
	// Input is the payload of the interaction, a JSON value.
	Input json.RawMessage

	// Caller is the address of the identity that posted the interaction.
	Caller string
}

// Outcome is the result of one invocation of the transition function. A
// rejected interaction is a normal outcome: the contract refused the input
// and the state is unchanged.
type Outcome struct {
	// State is the new contract state. It is nil when the interaction was
	// rejected.
	State json.RawMessage

	// Result is the optional return value of the transition function.
	Result json.RawMessage

	// Rejected is set when the contract refused the interaction.
	Rejected bool

	// Message explains the rejection.
	Message string
}

// Environment evaluates interactions against a contract's transition
// function.
type Environment interface {
	// Invoke applies the interaction to the state under the given transaction
	// context and returns the outcome. Contract-raised rejections are
	// reported in the outcome; any other failure of the contract code is
	// returned as an error. It is safe for concurrent use: overlapping
	// invocations are serialized.
	Invoke(ctx context.Context, state json.RawMessage, action Interaction,
		txctx TransactionContext) (Outcome, error)
}

// Builder constructs the environment of a contract from its source text.
type Builder func(source string, contractID string) (Environment, error)
