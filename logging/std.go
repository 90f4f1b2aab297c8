//go:build !tinygo

package logging

import "log"

func init() {
	global = &stdLogger{}
}

// stdLogger backs the global logger with the standard library log package,
// matching michcald-nrf24/logger-std.go's level-prefix convention.
type stdLogger struct{}

func (stdLogger) Debug(msg string) { log.Print("[DEBUG] " + msg) }
func (stdLogger) Info(msg string)  { log.Print("[INFO]  " + msg) }
func (stdLogger) Warn(msg string)  { log.Print("[WARN]  " + msg) }
func (stdLogger) Error(msg string) { log.Print("[ERROR] " + msg) }
