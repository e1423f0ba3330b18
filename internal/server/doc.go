// Package server implements the MCP (Model Context Protocol) server for the
// galaxy dataset and detector tools.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Classes:
//   - galaxy_classes: List class ids and names
//   - galaxy_classify: Classify one survey record from its vote fractions
//
// Dataset:
//   - dataset_prepare: Materialize the train/val dataset and dataset.yaml
//
// Detection:
//   - galaxy_detect: Detect galaxies in a local image or URL
//   - galaxy_random_validation: Detect on a random validation image with its ground truth
//
// Evaluation:
//   - galaxy_evaluate: Batch statistics over a sample of images
//   - evaluation_history: List or fetch stored evaluation runs
//
// # Shared Handles
//
// The detector and history store are created by the caller and passed in
// Deps. Either may be nil; tools that need a missing handle fail with a tool
// error while the rest keep working.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
//	srv := server.New(server.Deps{Config: cfg, Detector: det, History: hist})
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
