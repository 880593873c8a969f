//go:build fielddebug

package field

const debugChecks = true
