package interact

import (
	"context"
	"encoding/json"

	"github.com/loomledger/loom/core/ledger"
	"github.com/loomledger/loom/core/tags"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"golang.org/x/xerrors"
)

// ErrInvalidInput indicates that the interaction input is falsy. The check
// happens before any transaction is constructed.
var ErrInvalidInput = xerrors.New("invalid interaction input")

// Tag is a caller-supplied tag in clear form. The builder encodes it to the
// wire form after the protocol tags.
type Tag struct {
	Name  string
	Value string
}

// Option is the type of options of the interaction flows.
type Option func(*template)

type template struct {
	tags     []Tag
	target   string
	quantity string
	state    json.RawMessage
	caller   string
}

// WithTags is an option to attach extra tags to the interaction, in the
// given order.
func WithTags(extra ...Tag) Option {
	return func(tmpl *template) {
		tmpl.tags = append(tmpl.tags, extra...)
	}
}

// WithTarget is an option to attach a value transfer to the interaction. It
// is ignored unless the target is non-empty and the quantity is a positive
// amount in the smallest fee unit.
func WithTarget(target string, quantity string) Option {
	return func(tmpl *template) {
		tmpl.target = target
		tmpl.quantity = quantity
	}
}

// WithState is an option for the dry-run flows to evaluate against the given
// state instead of the replayed current state.
func WithState(state json.RawMessage) Option {
	return func(tmpl *template) {
		tmpl.state = state
	}
}

// WithCaller is an option to override the caller address instead of deriving
// it from the signing key.
func WithCaller(caller string) Option {
	return func(tmpl *template) {
		tmpl.caller = caller
	}
}

// BuildInteraction constructs and signs the ledger transaction encoding an
// interaction with the contract. The payload is a short random nonce so that
// two structurally identical interactions never collide on the transaction
// identity.
func BuildInteraction(ctx context.Context, client ledger.Client, key ledger.Key,
	contractID string, input any, opts ...Option) (ledger.Transaction, error) {

	tmpl := template{}
	for _, opt := range opts {
		opt(&tmpl)
	}

	return buildInteraction(ctx, client, key, contractID, input, tmpl)
}

func buildInteraction(ctx context.Context, client ledger.Client, key ledger.Key,
	contractID string, input any, tmpl template) (ledger.Transaction, error) {

	if !truthy(input) {
		return ledger.Transaction{}, xerrors.Errorf("input is falsy: %w", ErrInvalidInput)
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return ledger.Transaction{}, xerrors.Errorf("couldn't encode input: %v", err)
	}

	opts := ledger.TransactionOptions{
		Data: []byte(xid.New().String()),
	}

	if tmpl.target != "" && positiveAmount(tmpl.quantity) {
		opts.Target = tmpl.target
		opts.Quantity = tmpl.quantity
	}

	tx, err := client.CreateTransaction(ctx, opts, key)
	if err != nil {
		return ledger.Transaction{}, xerrors.Errorf("couldn't create transaction: %v", err)
	}

	tx.Tags = append(tx.Tags,
		tags.Encode(tags.TagAppName, tags.AppName),
		tags.Encode(tags.TagAppVersion, tags.AppVersion),
		tags.Encode(tags.TagContract, contractID),
		tags.Encode(tags.TagInput, string(encoded)),
	)

	for _, tag := range tmpl.tags {
		tx.Tags = append(tx.Tags, tags.Encode(tag.Name, tag.Value))
	}

	err = client.Sign(ctx, &tx, key)
	if err != nil {
		return ledger.Transaction{}, xerrors.Errorf("couldn't sign transaction: %v", err)
	}

	return tx, nil
}

// truthy reports whether the input is a truthy JSON value. A falsy input is a
// construction error, not a runtime one.
func truthy(input any) bool {
	switch v := input.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case json.RawMessage:
		s := string(v)
		return s != "" && s != "null" && s != "false" && s != "0" && s != `""`
	}

	return true
}

// positiveAmount reports whether the quantity parses to a positive amount.
func positiveAmount(quantity string) bool {
	if quantity == "" {
		return false
	}

	amount, err := decimal.NewFromString(quantity)

	return err == nil && amount.IsPositive()
}
