// Package clock provides the ledger clock used to timestamp registrations.
package clock
