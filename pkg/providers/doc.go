// Package providers defines the uniform capability set that every backend
// adapter implements: model listing, connection testing, streaming chat, and
// optional token counting.
//
// The package also owns the shared classified-error type. Every backend
// failure is normalized into a *ClassifiedError at the adapter boundary, so
// the dispatch engine never inspects provider-specific error shapes.
//
// Three adapters live in subpackages:
//   - anthropic: the cloud provider, driven through its official SDK
//   - openaicompat: any OpenAI-compatible REST/SSE endpoint
//   - ollama: a self-hosted inference server speaking JSON-lines streaming
package providers
