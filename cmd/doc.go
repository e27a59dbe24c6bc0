// Package cmd implements the command-line interface of dProof.
//
// The package is organized into several subpackages:
//
//   - proof: Client commands for the registry (register, verify, get, stats, dbinfo, perf)
//   - serve: Starting and configuring a dProof server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dproof -help for a list of all commands.
package cmd
