// Relay is the multi-provider key-rotation dispatch engine behind the
// Nimbus chat client, packaged as a CLI for configuring and exercising the
// credential pool outside the browser.
//
// Usage:
//
//	# Test every configured credential
//	relay test --config relay.yaml
//
//	# List models reachable through a credential
//	relay models --config relay.yaml --index 1
//
//	# One-shot streaming chat through the rotation engine
//	relay chat --config relay.yaml "why is the sky blue?"
//
//	# Show version information
//	relay version
package main

func main() {
	Execute()
}
