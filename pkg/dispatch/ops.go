package dispatch

import (
	"context"
	"fmt"

	"nimbus-chat/relay/pkg/credential"
	"nimbus-chat/relay/pkg/providers"
)

// Maintenance operations (model listing, connection testing, token
// counting) are not covered by the in-flight flag: they never touch the
// rotation state. Credential fields are still read as snapshots and written
// back under the engine lock, so they cannot race a dispatch in progress.

// ListModels queries the model catalog reachable through the identified
// credential.
func (e *Engine) ListModels(ctx context.Context, credentialID string) ([]providers.ModelInfo, error) {
	snap, adapter, err := e.snapshot(credentialID)
	if err != nil {
		return nil, err
	}

	models, err := adapter.ListModels(ctx, snap.Secret, snap.Endpoint)
	if err != nil {
		e.recordErrorCode(credentialID, err)
		return nil, err
	}
	return models, nil
}

// TestConnection performs the cheapest request proving the identified
// credential is authorized. Unknown credentials test as false.
func (e *Engine) TestConnection(ctx context.Context, credentialID string) bool {
	snap, adapter, err := e.snapshot(credentialID)
	if err != nil {
		return false
	}
	return adapter.TestConnection(ctx, snap.Secret, snap.Endpoint, snap.PreferredModel)
}

// CountTokens returns the prompt token count for a would-be request through
// the identified credential, or providers.TokensUnsupported when the
// backend cannot count.
func (e *Engine) CountTokens(ctx context.Context, credentialID string, history []providers.Message, newMessage string) (int, error) {
	snap, adapter, err := e.snapshot(credentialID)
	if err != nil {
		return 0, err
	}

	model := resolveModel(snap.PreferredModel, "", e.opts.DefaultModel)
	req := &providers.ChatRequest{
		Secret:     snap.Secret,
		Endpoint:   snap.Endpoint,
		Model:      model,
		History:    filterHistory(history),
		NewMessage: newMessage,
	}

	count, err := adapter.CountTokens(ctx, req)
	if err != nil {
		e.recordErrorCode(credentialID, err)
		return 0, err
	}
	return count, nil
}

// snapshot copies a credential's fields under the lock and resolves its
// adapter.
func (e *Engine) snapshot(credentialID string) (credential.Entry, providers.Adapter, error) {
	e.mu.Lock()
	entry := e.pool.ByID(credentialID)
	var snap credential.Entry
	if entry != nil {
		snap = *entry
	}
	e.mu.Unlock()

	if entry == nil {
		return snap, nil, fmt.Errorf("dispatch: unknown credential %q", credentialID)
	}

	adapter := e.adapters[snap.Provider]
	if adapter == nil {
		return snap, nil, fmt.Errorf("dispatch: no adapter registered for provider %q", snap.Provider)
	}
	return snap, adapter, nil
}

// recordErrorCode stores the classified code on the credential for the
// caller's status display. Informational only; activity and rate-limit
// state move exclusively through the dispatch failure path.
func (e *Engine) recordErrorCode(credentialID string, err error) {
	cerr, ok := providers.AsClassified(err)
	if !ok {
		return
	}

	e.mu.Lock()
	if entry := e.pool.ByID(credentialID); entry != nil {
		entry.LastErrorCode = cerr.Code
	}
	e.mu.Unlock()
}
