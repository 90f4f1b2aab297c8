//go:build tinygo

package logging

import "machine"

func init() {
	global = &uartLogger{}
}

// uartLogger writes level-prefixed lines to the board's default UART. This
// is the Receiver-target backend; it has no buffering of its own, which is
// exactly why EnableAsync exists for call sites inside the polling loop.
type uartLogger struct{}

func (uartLogger) write(prefix, msg string) {
	machine.Serial.Write([]byte(prefix + msg + "\r\n"))
}

func (l uartLogger) Debug(msg string) { l.write("[DEBUG] ", msg) }
func (l uartLogger) Info(msg string)  { l.write("[INFO]  ", msg) }
func (l uartLogger) Warn(msg string)  { l.write("[WARN]  ", msg) }
func (l uartLogger) Error(msg string) { l.write("[ERROR] ", msg) }
