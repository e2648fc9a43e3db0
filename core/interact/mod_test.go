package interact

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/loomledger/loom/core/contract"
	"github.com/loomledger/loom/core/execution/jsvm"
	"github.com/loomledger/loom/core/ledger"
	"github.com/loomledger/loom/core/tags"
	"github.com/loomledger/loom/internal/testing/fake"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

const counterSource = `
export function handle(state, action) {
	if (action.input.function === "increment") {
		state.counter += action.input.amount;
		return { state };
	}

	if (action.input.function === "value") {
		return { result: state.counter };
	}

	throw new ContractError("unknown function");
}
`

func TestBuildInteraction(t *testing.T) {
	client := fake.NewClient()

	tx, err := BuildInteraction(context.Background(), client, "key", "contract-id",
		map[string]any{"function": "transfer", "qty": 5},
		WithTags(Tag{Name: "X", Value: "1"}))
	require.NoError(t, err)
	require.NotEmpty(t, tx.Data)

	m, err := tags.Unpack(tx)
	require.NoError(t, err)

	appName, _ := m.Get(tags.TagAppName)
	require.Equal(t, tags.AppName, appName)

	appVersion, _ := m.Get(tags.TagAppVersion)
	require.Equal(t, tags.AppVersion, appVersion)

	contractID, _ := m.Get(tags.TagContract)
	require.Equal(t, "contract-id", contractID)

	custom, _ := m.Get("X")
	require.Equal(t, "1", custom)

	input, _ := m.Get(tags.TagInput)
	decoded := map[string]any{}
	err = json.Unmarshal([]byte(input), &decoded)
	require.NoError(t, err)
	require.Equal(t, "transfer", decoded["function"])
	require.Equal(t, float64(5), decoded["qty"])

	// The transaction must have been signed.
	last := client.Calls.Len() - 1
	require.Equal(t, "Sign", client.Calls.Get(last, 0))
}

func TestBuildInteraction_UniquePayloads(t *testing.T) {
	client := fake.NewClient()

	first, err := BuildInteraction(context.Background(), client, "key", "contract-id", "input")
	require.NoError(t, err)

	second, err := BuildInteraction(context.Background(), client, "key", "contract-id", "input")
	require.NoError(t, err)

	require.NotEqual(t, first.Data, second.Data)
}

func TestBuildInteraction_InvalidInput(t *testing.T) {
	client := fake.NewClient()

	for _, input := range []any{nil, "", false, 0, float64(0), json.RawMessage("null")} {
		_, err := BuildInteraction(context.Background(), client, "key", "contract-id", input)
		require.EqualError(t, err, "input is falsy: invalid interaction input")
		require.True(t, xerrors.Is(err, ErrInvalidInput))
	}

	// The check happens before anything is constructed.
	require.Equal(t, 0, client.Calls.Len())
}

func TestBuildInteraction_Transfer(t *testing.T) {
	client := fake.NewClient()

	tx, err := BuildInteraction(context.Background(), client, "key", "contract-id",
		"input", WithTarget("target-address", "5"))
	require.NoError(t, err)
	require.Equal(t, "target-address", tx.Target)
	require.Equal(t, "5", tx.Quantity)

	for _, quantity := range []string{"", "0", "-5", "garbage"} {
		tx, err = BuildInteraction(context.Background(), client, "key", "contract-id",
			"input", WithTarget("target-address", quantity))
		require.NoError(t, err)
		require.Empty(t, tx.Target)
		require.Empty(t, tx.Quantity)
	}
}

func TestBuildInteraction_ClientErrors(t *testing.T) {
	client := fake.NewClient()
	client.ErrCreate = fake.GetError()

	_, err := BuildInteraction(context.Background(), client, "key", "contract-id", "input")
	require.EqualError(t, err, fake.Err("couldn't create transaction"))

	client = fake.NewClient()
	client.ErrSign = fake.GetError()

	_, err = BuildInteraction(context.Background(), client, "key", "contract-id", "input")
	require.EqualError(t, err, fake.Err("couldn't sign transaction"))
}

func TestExecutor_Write(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	res, err := exec.Write(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 3})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	require.Equal(t, http.StatusOK, res.Status)
	require.NotEmpty(t, res.ID)

	require.Len(t, client.Posted(), 1)
	require.Equal(t, res.ID, client.Posted()[0].ID)
}

func TestExecutor_Write_Declined(t *testing.T) {
	client := makeContract(t, counterSource)
	client.PostStatus = http.StatusBadRequest

	exec := makeExecutor(client, `{"counter":0}`)

	res, err := exec.Write(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 3})
	require.NoError(t, err)
	require.False(t, res.Accepted)
	require.Equal(t, http.StatusBadRequest, res.Status)
}

func TestExecutor_Write_Fault(t *testing.T) {
	client := makeContract(t, `export function handle(state, action) { return missing.field; }`)

	exec := makeExecutor(client, `{}`)

	_, err := exec.Write(context.Background(), "key", "contract-id", "input")
	require.Error(t, err)

	// A fault aborts the flow before anything is submitted.
	require.Empty(t, client.Posted())
}

func TestExecutor_Write_InvalidInput(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	_, err := exec.Write(context.Background(), "key", "contract-id", nil)
	require.True(t, xerrors.Is(err, ErrInvalidInput))
	require.Equal(t, 0, client.Calls.Len())

	_, err = exec.Write(context.Background(), "key", "contract-id", "")
	require.True(t, xerrors.Is(err, ErrInvalidInput))
	require.Equal(t, 0, client.Calls.Len())
}

func TestExecutor_DryWrite(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	outcome, err := exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 3})
	require.NoError(t, err)
	require.False(t, outcome.Rejected)
	require.JSONEq(t, `{"counter":3}`, string(outcome.State))

	// A second dry run against the same initial state returns the same new
	// state: nothing is carried over between independent invocations.
	outcome, err = exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 3})
	require.NoError(t, err)
	require.JSONEq(t, `{"counter":3}`, string(outcome.State))

	// The dry-run flow must never reach the submission path.
	require.Empty(t, client.Posted())
}

func TestExecutor_DryWrite_WithState(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	outcome, err := exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 3},
		WithState(json.RawMessage(`{"counter":100}`)))
	require.NoError(t, err)
	require.JSONEq(t, `{"counter":103}`, string(outcome.State))
}

func TestExecutor_DryWrite_Rejected(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	outcome, err := exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "unknown"})
	require.NoError(t, err)
	require.True(t, outcome.Rejected)
	require.Equal(t, "unknown function", outcome.Message)
}

func TestExecutor_DryWriteCustom(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":40}`)

	tx := ledger.Transaction{
		ID:           "custom-tx",
		OwnerAddress: "custom-owner",
		Tags: []ledger.Tag{
			tags.Encode(tags.TagContract, "contract-id"),
			tags.Encode(tags.TagInput, `{"function":"increment","amount":2}`),
		},
	}

	outcome, err := exec.DryWriteCustom(context.Background(), tx, "custom-owner",
		"contract-id", map[string]any{"function": "increment", "amount": 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"counter":42}`, string(outcome.State))

	// Construction is bypassed entirely.
	for n := 0; n < client.Calls.Len(); n++ {
		require.NotEqual(t, "CreateTransaction", client.Calls.Get(n, 0))
		require.NotEqual(t, "Sign", client.Calls.Get(n, 0))
		require.NotEqual(t, "Post", client.Calls.Get(n, 0))
	}
}

func TestExecutor_Read(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":12}`)

	result, err := exec.Read(context.Background(), "key", "contract-id",
		map[string]any{"function": "value"})
	require.NoError(t, err)
	require.JSONEq(t, `12`, string(result))

	require.Empty(t, client.Posted())
}

func TestExecutor_Read_Rejected(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":12}`)

	_, err := exec.Read(context.Background(), "key", "contract-id",
		map[string]any{"function": "unknown"})
	require.True(t, xerrors.Is(err, ErrRejected))
	require.EqualError(t, err, "unknown function: interaction rejected")
}

func TestExecutor_RecordReuse(t *testing.T) {
	client := makeContract(t, counterSource)

	exec := makeExecutor(client, `{"counter":0}`)

	_, err := exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 1})
	require.NoError(t, err)

	fetched := fetchCount(client)

	_, err = exec.DryWrite(context.Background(), "key", "contract-id",
		map[string]any{"function": "increment", "amount": 1})
	require.NoError(t, err)

	// The second flow reuses the cached record instead of reloading.
	require.Equal(t, fetched, fetchCount(client))
}

func TestExecutor_UnknownContract(t *testing.T) {
	client := fake.NewClient()

	exec := makeExecutor(client, `{}`)

	_, err := exec.DryWrite(context.Background(), "key", "unknown", "input")
	require.Error(t, err)
	require.True(t, xerrors.Is(err, contract.ErrNotFound))
}

// -----------------------------------------------------------------------------
// Utility functions

func makeContract(t *testing.T, source string) *fake.Client {
	t.Helper()

	client := fake.NewClient()
	client.Txs["contract-id"] = ledger.Transaction{
		ID: "contract-id",
		Tags: []ledger.Tag{
			tags.Encode(tags.TagContractSrc, "src-id"),
			tags.Encode(tags.TagInitState, `{"counter":0}`),
		},
	}
	client.Txs["src-id"] = ledger.Transaction{
		ID:   "src-id",
		Data: []byte(source),
	}

	return client
}

func makeExecutor(client *fake.Client, state string) *Executor {
	loader := contract.NewLoader(client, jsvm.Builder())

	states := fake.StateProvider{State: json.RawMessage(state)}

	return NewExecutor(client, states, loader)
}

func fetchCount(client *fake.Client) int {
	count := 0
	for n := 0; n < client.Calls.Len(); n++ {
		if client.Calls.Get(n, 0) == "GetTransaction" {
			count++
		}
	}

	return count
}
