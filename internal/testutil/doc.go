// Package testutil provides test fixtures shared across packages: a
// controllable clock, a deterministic token minter, seeded clients and users,
// and small assertion helpers.
package testutil
