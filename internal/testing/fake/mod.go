// Package fake provides fake implementations for interfaces commonly used in
// the repository.
// The implementations offer configuration to return errors when it is needed by
// the unit test and it is also possible to record the call of functions of an
// object in some cases.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/loomledger/loom/core/ledger"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Err returns the message of an error wrapping the fake error.
func Err(msg string) string {
	return msg + ": fake error"
}

// Call is a tool to keep track of a function calls.
type Call struct {
	calls [][]interface{}
}

// Get returns the nth call ith parameter.
func (c *Call) Get(n, i int) interface{} {
	return c.calls[n][i]
}

// Len returns the number of calls.
func (c *Call) Len() int {
	if c == nil {
		return 0
	}

	return len(c.calls)
}

// Add adds a call to the list.
func (c *Call) Add(args ...interface{}) {
	c.calls = append(c.calls, args)
}

// Client is a fake implementation of a ledger client. Transactions are
// scripted through the Txs map and every call is recorded.
//
// - implements ledger.Client
type Client struct {
	Txs        map[string]ledger.Transaction
	Info       ledger.NetworkInfo
	Addr       string
	PostStatus int
	Calls      *Call

	ErrGetTx   error
	ErrInfo    error
	ErrCreate  error
	ErrSign    error
	ErrPost    error
	ErrAddress error

	counter int
}

// NewClient creates a fake client with sensible defaults.
func NewClient() *Client {
	return &Client{
		Txs:        make(map[string]ledger.Transaction),
		Info:       ledger.NetworkInfo{Height: 1000, Current: "block-1000"},
		Addr:       "caller-address",
		PostStatus: http.StatusOK,
		Calls:      &Call{},
	}
}

// GetTransaction implements ledger.Client.
func (c *Client) GetTransaction(ctx context.Context, id string) (ledger.Transaction, error) {
	c.Calls.Add("GetTransaction", id)

	if c.ErrGetTx != nil {
		return ledger.Transaction{}, c.ErrGetTx
	}

	tx, ok := c.Txs[id]
	if !ok {
		return ledger.Transaction{}, xerrors.Errorf("transaction '%s' not found", id)
	}

	return tx, nil
}

// GetNetworkInfo implements ledger.Client.
func (c *Client) GetNetworkInfo(ctx context.Context) (ledger.NetworkInfo, error) {
	c.Calls.Add("GetNetworkInfo")

	return c.Info, c.ErrInfo
}

// CreateTransaction implements ledger.Client.
func (c *Client) CreateTransaction(ctx context.Context,
	opts ledger.TransactionOptions, key ledger.Key) (ledger.Transaction, error) {

	c.Calls.Add("CreateTransaction", opts)

	if c.ErrCreate != nil {
		return ledger.Transaction{}, c.ErrCreate
	}

	c.counter++

	tx := ledger.Transaction{
		ID:           fmt.Sprintf("tx-%d", c.counter),
		Owner:        "owner-key",
		OwnerAddress: c.Addr,
		Target:       opts.Target,
		Quantity:     opts.Quantity,
		Reward:       "1",
		Data:         opts.Data,
	}

	return tx, nil
}

// Sign implements ledger.Client.
func (c *Client) Sign(ctx context.Context, tx *ledger.Transaction, key ledger.Key) error {
	c.Calls.Add("Sign", tx.ID)

	return c.ErrSign
}

// Post implements ledger.Client.
func (c *Client) Post(ctx context.Context, tx ledger.Transaction) (ledger.Status, error) {
	c.Calls.Add("Post", tx)

	if c.ErrPost != nil {
		return ledger.Status{}, c.ErrPost
	}

	return ledger.Status{Code: c.PostStatus}, nil
}

// Address implements ledger.Client.
func (c *Client) Address(ctx context.Context, key ledger.Key) (string, error) {
	c.Calls.Add("Address")

	if c.ErrAddress != nil {
		return "", c.ErrAddress
	}

	return c.Addr, nil
}

// Posted returns the transactions submitted through the client.
func (c *Client) Posted() []ledger.Transaction {
	posted := []ledger.Transaction{}

	for n := 0; n < c.Calls.Len(); n++ {
		if c.Calls.Get(n, 0) == "Post" {
			posted = append(posted, c.Calls.Get(n, 1).(ledger.Transaction))
		}
	}

	return posted
}

// StateProvider is a fake implementation of a state provider returning a
// constant state.
//
// - implements ledger.StateProvider
type StateProvider struct {
	State json.RawMessage
	Err   error
}

// CurrentState implements ledger.StateProvider.
func (p StateProvider) CurrentState(ctx context.Context, contractID string) (json.RawMessage, error) {
	return p.State, p.Err
}
