// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// TestConcurrency is the number of parallel pipeline runs in concurrency tests
	TestConcurrency = 8
)

// Common test strings
const (
	// TestQuestion is a default user question
	TestQuestion = "Which tickets belong to ACME Corporation?"

	// TestTicketsPlan is an oracle response choosing the tickets table
	TestTicketsPlan = `{"table": "crca6_tickets", "select": ["crca6_title", "crca6_accountName"], ` +
		`"filters": "crca6_accountName/crca6_name eq 'ACME Corporation'", ` +
		`"expand": "crca6_accountName($select=crca6_name)", "aggregation": "none", ` +
		`"order_by": null, "top": 10}`

	// TestToken is a bearer token returned by fake token endpoints
	TestToken = "test-access-token"
)
