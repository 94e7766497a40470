package serialmux

import (
	"io"
)

// SerialPorter is the minimal surface the mux needs from a serial port.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortFactory opens serial ports. Tests substitute MockSerialPortFactory.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}
