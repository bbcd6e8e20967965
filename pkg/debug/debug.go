// Package debug provides global verbose-logging flags
package debug

import "github.com/teslashibe/screen-guide/internal/log"

// Enabled controls whether per-frame capture and tick logs are shown
var Enabled bool

// Behavior controls whether per-event behavioral logs are shown (moves, clicks, scrolls)
// Use --debug-behavior to enable these very verbose logs
var Behavior bool

// Log emits a debug record only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Debug(msg, args...)
	}
}

// BehaviorLog emits a debug record only if behavior debug mode is enabled
func BehaviorLog(msg string, args ...any) {
	if Behavior {
		log.Debug(msg, args...)
	}
}
