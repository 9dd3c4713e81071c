// Package util provides small helpers shared across packages: credential-safe
// truncation for logging and redirect URI construction.
package util
