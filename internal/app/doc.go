// Package app contains the core application logic. It wires configuration,
// source modules and a sink into a pipeline and runs it, decoupled from any
// specific entrypoint like a CLI or server.
package app
