// Package serialio delivers a seed over a literal serial connection for
// the input_channel=serial case (spec.md §6): some on-chip targets read
// their input from a UART rather than argv/stdin, a separate concern
// from the on-chip gdb transport itself (internal/debugger/onchip),
// which only carries debug commands. Grounded on
// original_source/src/connection/serial_connection.py's role (framing
// bytes onto a byte stream) using go.bug.st/serial, the same serial
// library the Arduino toolchain (arduino-cli) uses — no serial port
// access is possible through the standard library alone, since termios
// handling isn't exposed there, and no pack example repo happens to
// touch serial I/O to ground a choice from, so this is named here as an
// out-of-pack ecosystem pick rather than a corpus-grounded one.
package serialio

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// WriteSeed opens portName at baud and writes data to it, the transport
// mechanism a UART-fed embedded parser needs its seed delivered over.
// It does not attempt to synchronize with the target's own read loop
// (e.g. waiting for a ready byte) — that framing is specific to each
// firmware's protocol and out of scope here, the same way
// serial_connection.py's caller, not the connection class itself, owned
// handshake timing.
func WriteSeed(portName string, baud int, data []byte) error {
	if portName == "" {
		return fmt.Errorf("serialio: no port configured")
	}
	mode := &serial.Mode{BaudRate: baud}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("serialio: open %v: %w", portName, err)
	}
	defer port.Close()

	if err := port.SetReadTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("serialio: set timeout: %w", err)
	}
	if _, err := port.Write(data); err != nil {
		return fmt.Errorf("serialio: write: %w", err)
	}
	return nil
}
