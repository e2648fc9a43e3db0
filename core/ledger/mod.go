// Package ledger defines the abstraction of the ledger node that the engine
// talks to.
//
// The engine never speaks the wire protocol itself. It fetches transactions,
// queries the network head, and posts signed interactions through the Client
// interface, so that any gateway implementation can be plugged in. Signing and
// address derivation are delegated to the client as well, which keeps key
// material out of this module entirely.
package ledger

import (
	"context"
	"encoding/json"
)

// Tag is a name/value metadata pair attached to a transaction. Both fields
// hold the wire form, which is URL-safe base64 without padding. The tags
// package provides the codec.
type Tag struct {
	Name  string
	Value string
}

// Transaction is the envelope stored on the ledger. Quantity and Reward are
// expressed in the smallest fee unit as decimal strings.
type Transaction struct {
	ID           string
	Owner        string
	OwnerAddress string
	Target       string
	Quantity     string
	Reward       string
	Data         []byte
	Tags         []Tag
}

// TransactionOptions is the set of fields a client needs to assemble a new
// transaction envelope.
type TransactionOptions struct {
	Data     []byte
	Target   string
	Quantity string
}

// NetworkInfo describes the current head of the ledger.
type NetworkInfo struct {
	// Height is the number of blocks in the chain.
	Height int64

	// Current is the identifier of the latest block.
	Current string
}

// Status is the outcome of posting a transaction.
type Status struct {
	Code int
}

// Key is an opaque signing key. The engine only carries it between calls of
// the same client, it never inspects it.
type Key any

// Client is the interface of the ledger node. All blocking operations take a
// context so that the caller owns the timeout policy.
type Client interface {
	// GetTransaction fetches a committed transaction by its identifier.
	GetTransaction(ctx context.Context, id string) (Transaction, error)

	// GetNetworkInfo returns the current height and block identifier.
	GetNetworkInfo(ctx context.Context) (NetworkInfo, error)

	// CreateTransaction assembles an unsigned transaction envelope for the
	// identity behind the key, filling in the owner fields.
	CreateTransaction(ctx context.Context, opts TransactionOptions, key Key) (Transaction, error)

	// Sign signs the transaction in place, fixing its identifier.
	Sign(ctx context.Context, tx *Transaction, key Key) error

	// Post submits a signed transaction to the ledger.
	Post(ctx context.Context, tx Transaction) (Status, error)

	// Address derives the address of the identity behind the key.
	Address(ctx context.Context, key Key) (string, error)
}

// StateProvider folds the interaction history of a contract into its current
// state. The engine treats it as an opaque source of state values.
type StateProvider interface {
	CurrentState(ctx context.Context, contractID string) (json.RawMessage, error)
}
