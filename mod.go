// Package loom implements a client-side engine for ledger-resident smart
// contracts. A contract is an identifier bound to source code and an initial
// state on an append-only ledger; its current state is derived off-chain by
// replaying the ordered history of interaction transactions posted against it.
//
// The engine is split in two halves: loading and sandboxed execution of the
// contract source (core/contract, core/execution), and construction and
// simulation of interaction transactions (core/interact). Everything is
// deterministic: two readers replaying the same history against the same
// source reach the same state.
package loom

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var logout = zerolog.ConsoleWriter{
	Out:        os.Stdout,
	TimeFormat: time.RFC3339,
}

// Logger is a globally available logger instance.
var Logger = zerolog.New(logout).
	With().Timestamp().Logger().
	With().Caller().Logger().
	Level(zerolog.DebugLevel)

// PromCollectors exposes the metrics registered by the packages of this
// module so that an application can feed them to its own registry.
var PromCollectors []prometheus.Collector
