//go:build !fielddebug

package field

const debugChecks = false
