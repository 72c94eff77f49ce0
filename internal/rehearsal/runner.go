// Package rehearsal drives the pipeline from a Lua script with synthetic
// Streamlabs alerts, so effects can be previewed without a live stream.
package rehearsal

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

// DefaultScript replays one alert of each kind
//
//go:embed default.lua
var DefaultScript string

// Sink receives the raw payloads a script produces
type Sink func(raw []byte)

// Runner executes rehearsal scripts. Each Run uses a fresh Lua state
// owned by the calling goroutine.
type Runner struct {
	sink Sink
}

// NewRunner creates a runner that feeds payloads into sink
func NewRunner(sink Sink) *Runner {
	return &Runner{sink: sink}
}

// Run executes script. Cancelling ctx stops the script, including any sleep
// in progress, and is not reported as an error.
func (r *Runner) Run(ctx context.Context, name, script string) error {
	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	r.register(L)

	log.Info().Str("script", name).Msg("Starting rehearsal")

	fn, err := L.LoadString(script)
	if err != nil {
		return fmt.Errorf("failed to load rehearsal script %s: %w", name, err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if ctx.Err() != nil {
			log.Info().Str("script", name).Msg("Rehearsal cancelled")
			return nil
		}
		return fmt.Errorf("rehearsal script %s failed: %w", name, err)
	}

	log.Info().Str("script", name).Msg("Rehearsal finished")
	return nil
}

// RunFile executes the script at path, or DefaultScript when path is empty
func (r *Runner) RunFile(ctx context.Context, path string) error {
	if path == "" {
		return r.Run(ctx, "default", DefaultScript)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rehearsal script: %w", err)
	}
	return r.Run(ctx, path, string(data))
}

func (r *Runner) register(L *lua.LState) {
	L.SetGlobal("log", logTable(L))
	L.SetGlobal("donation", L.NewFunction(r.donation))
	L.SetGlobal("bits", L.NewFunction(r.bits))
	L.SetGlobal("follow", L.NewFunction(r.follow))
	L.SetGlobal("subscription", L.NewFunction(r.subscription))
	L.SetGlobal("raw", L.NewFunction(r.raw))
	L.SetGlobal("sleep", L.NewFunction(sleep))
}

// donation(amount[, name])
func (r *Runner) donation(L *lua.LState) int {
	amount := float64(L.CheckNumber(1))
	name := L.OptString(2, "Rehearsal Donor")
	r.sink(donationPayload(amount, name))
	return 0
}

// bits(amount[, name])
func (r *Runner) bits(L *lua.LState) int {
	amount := float64(L.CheckNumber(1))
	name := L.OptString(2, "Rehearsal Cheerer")
	r.sink(bitsPayload(amount, name))
	return 0
}

// follow([name])
func (r *Runner) follow(L *lua.LState) int {
	r.sink(followPayload(L.OptString(1, "Rehearsal Follower")))
	return 0
}

// subscription([name])
func (r *Runner) subscription(L *lua.LState) int {
	r.sink(subscriptionPayload(L.OptString(1, "Rehearsal Subscriber")))
	return 0
}

// raw(json) passes an arbitrary payload through unchanged
func (r *Runner) raw(L *lua.LState) int {
	r.sink([]byte(L.CheckString(1)))
	return 0
}

// sleep(ms)
func sleep(L *lua.LState) int {
	ms := L.CheckInt64(1)
	if ms < 0 {
		L.ArgError(1, "negative duration")
		return 0
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		L.RaiseError("sleep interrupted: %v", ctx.Err())
	case <-timer.C:
	}
	return 0
}
