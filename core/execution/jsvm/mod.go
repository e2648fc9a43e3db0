// Package jsvm implements the sandboxed execution environment on top of an
// embedded ECMAScript interpreter.
//
// The contract source is evaluated in a fresh interpreter whose global scope
// contains only the bindings this package installs: the SmartWeave context
// object, the BigNumber arithmetic type, the ContractError type and the
// ContractAssert helper. The interpreter has no ambient host capability, so
// referencing anything else fails at evaluation time. That boundary is the
// correctness-critical property of this package.
//
// Documentation Last Review: 30.08.2026
package jsvm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"sync"

	"github.com/dop251/goja"
	"github.com/loomledger/loom/core/execution"
	"github.com/loomledger/loom/core/ledger"
	"github.com/loomledger/loom/core/tags"
	"golang.org/x/xerrors"
)

// contractErrorName identifies the throw of a clean contract rejection, as
// opposed to a fault in the contract code.
const contractErrorName = "ContractError"

// prelude declares the domain error type and the assertion helper inside the
// scope, before the contract source is evaluated.
const prelude = `
class ContractError extends Error {
	constructor(message) {
		super(message);
		this.name = "ContractError";
	}
}

function ContractAssert(cond, message) {
	if (!cond) {
		throw new ContractError(message);
	}
}
`

// The entry point must be invocable as a plain declaration inside the scope,
// so the module export forms are rewritten before evaluation.
var (
	exportAsyncHandle = regexp.MustCompile(`export\s+async\s+function\s+handle`)
	exportHandle      = regexp.MustCompile(`export\s+function\s+handle`)
)

// Option is the type of options to build an environment.
type Option func(*template)

type template struct {
	utils map[string]any
}

// WithUtilNamespace is an option to install additional bindings under
// SmartWeave.utils. The values must be pure: anything reaching the host
// breaks the isolation boundary and the determinism of the contract.
func WithUtilNamespace(extra map[string]any) Option {
	return func(tmpl *template) {
		for name, value := range extra {
			tmpl.utils[name] = value
		}
	}
}

// Environment is a sandboxed evaluation scope bound to one contract. It keeps
// the single interpreter of the contract and serializes invocations on it.
//
// - implements execution.Environment
type Environment struct {
	sync.Mutex

	contractID string
	rt         *goja.Runtime
	handle     goja.Callable
	sw         *goja.Object
	parse      goja.Callable
	stringify  goja.Callable
}

// NewEnvironment evaluates the contract source and returns the environment
// holding its transition function. Malformed source, or source that does not
// declare a handle function, fails fast without producing a partially built
// environment.
func NewEnvironment(source string, contractID string, opts ...Option) (*Environment, error) {
	tmpl := template{
		utils: map[string]any{
			"stringToB64Url": func(s string) string {
				return base64.RawURLEncoding.EncodeToString([]byte(s))
			},
			"b64UrlToString": func(s string) string {
				raw, err := base64.RawURLEncoding.DecodeString(s)
				if err != nil {
					return ""
				}
				return string(raw)
			},
		},
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	rt := goja.New()

	sw := rt.NewObject()

	contract := rt.NewObject()
	contract.Set("id", contractID)
	sw.Set("contract", contract)

	utils := rt.NewObject()
	for name, value := range tmpl.utils {
		utils.Set(name, value)
	}
	sw.Set("utils", utils)

	err := rt.Set("SmartWeave", sw)
	if err != nil {
		return nil, xerrors.Errorf("couldn't install context object: %v", err)
	}

	err = registerBigNumber(rt)
	if err != nil {
		return nil, xerrors.Errorf("couldn't install arithmetic type: %v", err)
	}

	_, err = rt.RunString(prelude)
	if err != nil {
		return nil, xerrors.Errorf("couldn't install prelude: %v", err)
	}

	normalized := exportAsyncHandle.ReplaceAllString(source, "async function handle")
	normalized = exportHandle.ReplaceAllString(normalized, "function handle")

	_, err = rt.RunString(normalized)
	if err != nil {
		return nil, xerrors.Errorf("couldn't evaluate contract source: %v", err)
	}

	handle, ok := goja.AssertFunction(rt.Get("handle"))
	if !ok {
		return nil, xerrors.New("contract source does not declare a handle function")
	}

	jsonObj := rt.Get("JSON").ToObject(rt)
	parse, _ := goja.AssertFunction(jsonObj.Get("parse"))
	stringify, _ := goja.AssertFunction(jsonObj.Get("stringify"))

	env := &Environment{
		contractID: contractID,
		rt:         rt,
		handle:     handle,
		sw:         sw,
		parse:      parse,
		stringify:  stringify,
	}

	return env, nil
}

// Builder returns a builder constructing environments with the given options.
func Builder(opts ...Option) execution.Builder {
	return func(source string, contractID string) (execution.Environment, error) {
		return NewEnvironment(source, contractID, opts...)
	}
}

// Invoke implements execution.Environment. It installs the transaction
// context in the scope, calls the transition function and classifies the
// outcome. A throw of the domain error type is a rejected interaction; any
// other throw, or a return value carrying neither a state nor a result, is a
// fault reported as an error.
func (env *Environment) Invoke(ctx context.Context, state json.RawMessage,
	action execution.Interaction, txctx execution.TransactionContext) (execution.Outcome, error) {

	if err := ctx.Err(); err != nil {
		return execution.Outcome{}, xerrors.Errorf("context: %v", err)
	}

	env.Lock()
	defer env.Unlock()

	env.installTxContext(txctx)
	// The previous transaction context must never survive an invocation.
	defer env.clearTxContext()

	stateVal, err := env.inject(state)
	if err != nil {
		return execution.Outcome{}, xerrors.Errorf("couldn't inject state: %v", err)
	}

	inputVal, err := env.inject(action.Input)
	if err != nil {
		return execution.Outcome{}, xerrors.Errorf("couldn't inject input: %v", err)
	}

	actionObj := env.rt.NewObject()
	actionObj.Set("input", inputVal)
	actionObj.Set("caller", action.Caller)

	ret, err := env.handle(goja.Undefined(), stateVal, actionObj)
	if err != nil {
		return env.classifyThrow(err)
	}

	if ret == nil {
		return execution.Outcome{}, xerrors.New("transition function returned no value")
	}

	// An asynchronous transition function returns a promise. The scope offers
	// no host asynchrony, so the promise is settled by the time the call
	// returns.
	if promise, ok := ret.Export().(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			ret = promise.Result()
		case goja.PromiseStateRejected:
			return env.classifyValue(promise.Result())
		default:
			return execution.Outcome{}, xerrors.New("transition function did not settle")
		}
	}

	if goja.IsUndefined(ret) || goja.IsNull(ret) {
		return execution.Outcome{}, xerrors.New("transition function returned no value")
	}

	retObj := ret.ToObject(env.rt)

	newState := retObj.Get("state")
	result := retObj.Get("result")

	outcome := execution.Outcome{}

	hasState := newState != nil && !goja.IsUndefined(newState) && !goja.IsNull(newState)
	hasResult := result != nil && !goja.IsUndefined(result) && !goja.IsNull(result)

	if !hasState && !hasResult {
		return execution.Outcome{}, xerrors.New("transition function returned neither state nor result")
	}

	if hasState {
		raw, err := env.extract(newState)
		if err != nil {
			return execution.Outcome{}, xerrors.Errorf("couldn't extract state: %v", err)
		}

		outcome.State = raw
	}

	if hasResult {
		raw, err := env.extract(result)
		if err != nil {
			return execution.Outcome{}, xerrors.Errorf("couldn't extract result: %v", err)
		}

		outcome.Result = raw
	}

	return outcome, nil
}

// installTxContext exposes the transaction context of the current invocation
// in the scope.
func (env *Environment) installTxContext(txctx execution.TransactionContext) {
	rt := env.rt

	tx := rt.NewObject()
	tx.Set("id", txctx.ID)
	tx.Set("owner", txctx.Owner)
	tx.Set("target", txctx.Target)
	tx.Set("quantity", txctx.Quantity)
	tx.Set("reward", txctx.Reward)
	tx.Set("tags", decodedTags(rt, txctx.Tags))

	block := rt.NewObject()
	block.Set("height", txctx.Block.Height)
	block.Set("indep_hash", txctx.Block.ID)
	if txctx.Block.Timestamp != nil {
		block.Set("timestamp", *txctx.Block.Timestamp)
	} else {
		block.Set("timestamp", goja.Null())
	}

	env.sw.Set("transaction", tx)
	env.sw.Set("block", block)
}

func (env *Environment) clearTxContext() {
	env.sw.Set("transaction", goja.Null())
	env.sw.Set("block", goja.Null())
}

// decodedTags exposes the tags of the transaction in decoded form. An
// undecodable tag is skipped rather than failing the invocation, as contract
// code cannot do anything about it.
func decodedTags(rt *goja.Runtime, list []ledger.Tag) goja.Value {
	decoded := make([]any, 0, len(list))

	for _, tag := range list {
		name, value, err := tags.Decode(tag)
		if err != nil {
			continue
		}

		obj := rt.NewObject()
		obj.Set("name", name)
		obj.Set("value", value)
		decoded = append(decoded, obj)
	}

	return rt.ToValue(decoded)
}

// inject converts a JSON value of the host into a genuine value of the scope.
// A nil raw message becomes null.
func (env *Environment) inject(raw json.RawMessage) (goja.Value, error) {
	if len(raw) == 0 {
		return goja.Null(), nil
	}

	val, err := env.parse(goja.Undefined(), env.rt.ToValue(string(raw)))
	if err != nil {
		return nil, xerrors.Errorf("couldn't parse value: %v", err)
	}

	return val, nil
}

// extract converts a value of the scope into its canonical JSON form.
func (env *Environment) extract(val goja.Value) (json.RawMessage, error) {
	out, err := env.stringify(goja.Undefined(), val)
	if err != nil {
		return nil, xerrors.Errorf("couldn't stringify value: %v", err)
	}

	if goja.IsUndefined(out) {
		return nil, xerrors.New("value is not serializable")
	}

	return json.RawMessage(out.String()), nil
}

// classifyThrow sorts a failure of the transition function into a rejection
// or a fault.
func (env *Environment) classifyThrow(err error) (execution.Outcome, error) {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return execution.Outcome{}, xerrors.Errorf("transition function: %v", err)
	}

	return env.classifyValue(ex.Value())
}

func (env *Environment) classifyValue(thrown goja.Value) (execution.Outcome, error) {
	if thrown != nil && !goja.IsUndefined(thrown) && !goja.IsNull(thrown) {
		obj := thrown.ToObject(env.rt)

		name := obj.Get("name")
		if name != nil && name.String() == contractErrorName {
			message := ""
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				message = msg.String()
			}

			return execution.Outcome{Rejected: true, Message: message}, nil
		}
	}

	return execution.Outcome{}, xerrors.Errorf("transition function threw: %s", safeString(thrown))
}

func safeString(val goja.Value) string {
	if val == nil {
		return "undefined"
	}

	return val.String()
}
