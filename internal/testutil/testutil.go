// Package testutil provides test helpers for msglist tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertStrings, etc.)
//   - builders.go: message.Record builders
//   - store_helpers.go: database test setup (NewTestStore, NewTestFolder)
//   - fs_helpers.go: filesystem and maildir setup (WriteFile, NewMaildir)
package testutil
