package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nimbus-chat/relay/pkg/credential"
	"nimbus-chat/relay/pkg/providers"
	"nimbus-chat/relay/pkg/providers/anthropic"
	"nimbus-chat/relay/pkg/providers/ollama"
	"nimbus-chat/relay/pkg/providers/openaicompat"
	"nimbus-chat/relay/pkg/telemetry/metrics"
)

// Request is one generation call.
type Request struct {
	// History is the prior conversation. Empty and error-placeholder
	// messages are filtered out before dispatch.
	History []providers.Message

	// Message is the new user turn
	Message string

	// SystemInstruction is the system prompt (may be empty)
	SystemInstruction string

	// Config carries the sampling parameters
	Config providers.GenerationConfig

	// DefaultModel overrides the engine-level default for this call
	DefaultModel string
}

// Result is the terminal state of a successful generation call.
type Result struct {
	// Text is the aggregated response text
	Text string

	// CredentialID identifies the credential that served the call
	CredentialID string

	// CredentialIndex is the 1-based position of the credential within
	// the full pool, the label callers show in their UI
	CredentialIndex int

	// Provider is the backend family used
	Provider providers.Kind

	// Model is the resolved model identifier
	Model string
}

// Engine is the key-rotation dispatch engine. Construct one per caller
// session with New and discard it on teardown; it holds no state that must
// survive a restart beyond what the caller independently persists.
type Engine struct {
	pool     *credential.Pool
	adapters map[providers.Kind]providers.Adapter
	opts     Options
	logger   *slog.Logger

	// mu guards the rotation state and all credential field mutation.
	mu           sync.Mutex
	cursor       int
	usageCounter int

	// inFlight is the mutual-exclusion flag for generation calls.
	inFlight atomic.Bool
}

// New creates an engine wired to the three real provider adapters.
func New(opts Options) *Engine {
	httpCfg := providers.HTTPClientConfig{}
	return NewWithAdapters(opts,
		anthropic.New(),
		openaicompat.New(httpCfg),
		ollama.New(httpCfg),
	)
}

// NewWithAdapters creates an engine with an explicit adapter set. Tests use
// this to substitute scripted adapters.
func NewWithAdapters(opts Options, adapters ...providers.Adapter) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	table := make(map[providers.Kind]providers.Adapter, len(adapters))
	for _, a := range adapters {
		table[a.Kind()] = a
	}

	return &Engine{
		pool:     credential.NewPool(),
		adapters: table,
		opts:     opts,
		logger:   opts.Logger,
	}
}

// UpdateCredentials atomically replaces the credential pool. If the cursor
// now exceeds the new active view it resets to zero together with the usage
// counter.
func (e *Engine) UpdateCredentials(entries []*credential.Entry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pool.Replace(entries)

	active := e.pool.ActiveEntries()
	if e.cursor >= len(active) {
		e.cursor = 0
		e.usageCounter = 0
	}
	e.opts.Metrics.SetActiveCredentials(len(active))

	e.logger.Debug("credential pool replaced",
		"total", e.pool.Len(),
		"active", len(active),
	)
}

// Credentials returns a snapshot of the full pool, in order. The copies are
// safe to read without racing the engine.
func (e *Engine) Credentials() []credential.Entry {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := e.pool.All()
	out := make([]credential.Entry, len(all))
	for i, entry := range all {
		out[i] = *entry
	}
	return out
}

// StreamChatResponse performs one generation call: select a credential,
// invoke its adapter, and on classified failure mutate credential state and
// retry with a different credential, up to a budget of
// max(2, 2 x active-credential count).
//
// Rejection and cancellation are surfaced immediately and never retried.
// onChunk receives cumulative text as it streams; on failure after partial
// delivery, that text is best-effort partial output, not a committed
// response.
func (e *Engine) StreamChatResponse(ctx context.Context, req *Request, onChunk providers.ChunkFunc) (*Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, ErrCallInProgress
	}
	defer e.inFlight.Store(false)

	history := filterHistory(req.History)

	e.mu.Lock()
	budget := retryBudget(len(e.pool.ActiveEntries()))
	e.mu.Unlock()

	var last *providers.ClassifiedError

	for attempt := 0; attempt < budget; attempt++ {
		e.mu.Lock()
		entry, err := e.selectLocked(e.opts.Clock())
		if err != nil {
			e.mu.Unlock()
			// No active credentials cannot improve by retrying.
			return nil, err
		}
		snap := *entry
		e.mu.Unlock()

		model := resolveModel(snap.PreferredModel, req.DefaultModel, e.opts.DefaultModel)

		start := e.opts.Clock()
		text, cerr := e.dispatchOnce(ctx, &snap, model, history, req, onChunk)
		e.opts.Metrics.ObserveLatency(string(snap.Provider), e.opts.Clock().Sub(start))

		if cerr == nil {
			e.mu.Lock()
			entry.LastUsedAt = e.opts.Clock()
			index := e.pool.DisplayIndex(entry.ID)
			e.mu.Unlock()

			e.opts.Metrics.RecordAttempt(string(snap.Provider), "success")
			return &Result{
				Text:            text,
				CredentialID:    snap.ID,
				CredentialIndex: index,
				Provider:        snap.Provider,
				Model:           model,
			}, nil
		}

		e.opts.Metrics.RecordAttempt(string(snap.Provider), cerr.Class.String())

		switch cerr.Class {
		case providers.ClassCancelled:
			// Abort without mutating credential state.
			return nil, cerr
		case providers.ClassRejection:
			// Rotating credentials cannot fix a rejected prompt.
			return nil, cerr
		}

		activeLeft := e.markFailure(entry, cerr)
		last = cerr

		e.logger.Warn("dispatch attempt failed",
			"attempt", attempt+1,
			"budget", budget,
			"provider", snap.Provider,
			"class", cerr.Class.String(),
			"code", cerr.Code,
		)

		if activeLeft == 0 {
			// Every credential was deactivated mid-loop; stop rather
			// than spinning out the remaining budget.
			return nil, &ExhaustedError{Last: last, Attempts: attempt + 1}
		}
	}

	return nil, &ExhaustedError{Last: last, Attempts: budget}
}

// dispatchOnce performs a single adapter invocation against a credential
// snapshot. It returns the aggregated text on success, or the classified
// failure otherwise. Credential state is never touched here.
func (e *Engine) dispatchOnce(ctx context.Context, snap *credential.Entry, model string, history []providers.Message, req *Request, onChunk providers.ChunkFunc) (string, *providers.ClassifiedError) {
	adapter := e.adapters[snap.Provider]
	if adapter == nil {
		return "", &providers.ClassifiedError{
			Provider: snap.Provider,
			Class:    providers.ClassFatal,
			Code:     providers.CodeUnknown,
			Message:  "no adapter registered for provider",
		}
	}

	// The engine never hands an empty secret to an adapter; the entry is
	// treated as a fatally misconfigured credential instead.
	if snap.Secret == "" {
		return "", &providers.ClassifiedError{
			Provider: snap.Provider,
			Class:    providers.ClassFatal,
			Code:     providers.CodeInvalidCredential,
			Message:  "credential has an empty secret",
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if e.opts.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
	}

	chatReq := &providers.ChatRequest{
		Secret:            snap.Secret,
		Endpoint:          snap.Endpoint,
		Model:             model,
		History:           history,
		NewMessage:        req.Message,
		SystemInstruction: req.SystemInstruction,
		Config:            req.Config,
	}

	text, err := adapter.StreamChat(callCtx, chatReq, onChunk)
	if err == nil {
		return text, nil
	}

	// Caller cancellation wins over whatever shape the adapter returned
	// it in. A tripped engine-level call timeout with a live parent
	// context is a hung backend, not a cancellation: classify it
	// transient so rotation tries another credential.
	if ctx.Err() != nil {
		return text, providers.ClassifyErr(snap.Provider, ctx.Err())
	}
	cerr := providers.ClassifyErr(snap.Provider, err)
	if cerr.Class == providers.ClassCancelled && callCtx.Err() != nil {
		return text, &providers.ClassifiedError{
			Provider: snap.Provider,
			Class:    providers.ClassTransient,
			Code:     providers.CodeNetworkIssue,
			Message:  "adapter call exceeded the dispatch timeout",
			Cause:    err,
		}
	}

	return text, cerr
}

// markFailure applies the classification table to the credential that
// failed: fatal deactivates, transient rate-limits and refreshes the
// cooldown anchor. It returns the number of credentials still active and
// fires the caller's state-sync callback outside the lock.
func (e *Engine) markFailure(entry *credential.Entry, cerr *providers.ClassifiedError) int {
	fatal := cerr.Class == providers.ClassFatal

	e.mu.Lock()
	entry.LastErrorCode = cerr.Code
	if fatal {
		entry.Active = false
	} else {
		entry.RateLimited = true
		entry.LastUsedAt = e.opts.Clock()
	}
	activeLeft := len(e.pool.ActiveEntries())
	e.mu.Unlock()

	if fatal {
		e.opts.Metrics.RecordCredentialEvent(metrics.EventDeactivated)
	} else {
		e.opts.Metrics.RecordCredentialEvent(metrics.EventRateLimited)
	}
	e.opts.Metrics.SetActiveCredentials(activeLeft)

	if e.opts.OnCredentialError != nil {
		e.opts.OnCredentialError(entry.ID, cerr.Code, fatal)
	}

	return activeLeft
}

// resolveModel picks the model for an attempt: the credential's preference,
// then the request override, then the engine default.
func resolveModel(preferred, requestDefault, engineDefault string) string {
	if preferred != "" {
		return preferred
	}
	if requestDefault != "" {
		return requestDefault
	}
	return engineDefault
}

// filterHistory drops empty messages and the error placeholders callers
// render for failed turns.
func filterHistory(history []providers.Message) []providers.Message {
	filtered := make([]providers.Message, 0, len(history))
	for _, msg := range history {
		if msg.IsError || msg.Content == "" {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered
}
