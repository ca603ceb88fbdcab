// Relay is a small threaded HTTP/1.x dispatcher with a pluggable request
// handler, a JSON error adapter, static file serving and a streaming
// reverse proxy.
//
// Usage:
//
//	# Start the demo server with the default configuration
//	relay run
//
//	# Start with a configuration file and four workers
//	relay run --config relay.yaml --workers 4
//
//	# Restart the server whenever a watched file changes
//	relay dev
//
//	# Check a configuration file and print the effective settings
//	relay validate --config relay.yaml --print --format yaml
//
//	# Show version information
//	relay version
package main

func main() {
	Execute()
}
