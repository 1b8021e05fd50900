// Command wsrpc talks JSON-RPC over a multiplexed websocket: one-shot calls,
// subscription listening, and a small server to test against.
package main

func main() {
	Execute()
}
