package providers

import "context"

// Adapter is the uniform capability set every backend implementation
// provides. Adapters are stateless leaves: credentials and endpoints arrive
// per call, so one adapter instance serves every credential of its kind.
//
// All methods accept a context.Context for cancellation and timeout control.
// Implementations must respect context cancellation and return promptly when
// the context is cancelled.
//
// Every failure returned from an Adapter method is normalized into a
// *ClassifiedError before it leaves the adapter, so callers can branch on
// Class and Code without knowing the backend's wire format.
type Adapter interface {
	// Kind returns the backend family this adapter serves.
	Kind() Kind

	// ListModels queries the backend's model catalog, filtered to
	// chat-capable families where the backend returns an unfiltered
	// catalog.
	//
	// When the backend reports "forbidden" the adapter returns an empty
	// list and no error, so the UI layer can distinguish "no models" from
	// "broken credential" on its own terms.
	ListModels(ctx context.Context, secret, endpoint string) ([]ModelInfo, error)

	// TestConnection performs the cheapest request that proves the
	// credential is authorized for the target capability. It never
	// returns an error; any failure converts to false.
	TestConnection(ctx context.Context, secret, endpoint, model string) bool

	// StreamChat issues a generation request and returns the final text.
	// If the backend streams incrementally and onChunk is non-nil, it is
	// invoked with the cumulative text after each increment.
	//
	// A content-safety stop with no text returns RejectionMarker as the
	// text together with a ClassRejection error.
	StreamChat(ctx context.Context, req *ChatRequest, onChunk ChunkFunc) (string, error)

	// CountTokens returns the prompt token count for the given request,
	// or TokensUnsupported (with a nil error) when the backend has no
	// token-counting capability.
	CountTokens(ctx context.Context, req *ChatRequest) (int, error)
}
