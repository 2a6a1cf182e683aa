//go:build !novacore_debug

package klog

// Assert is a no-op in release builds; see assert_debug.go.
func Assert(cond bool, subsystem, msg string) {}
