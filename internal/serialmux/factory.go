package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports through go.bug.st/serial.
type RealSerialPortFactory struct{}

func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

func (RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// OpenSerialMux opens path through factory and wraps the port in a mux.
func OpenSerialMux(factory SerialPortFactory, name, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	if path == "" {
		return nil, fmt.Errorf("%s: no serial port configured", name)
	}
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s port %s: %w", name, path, err)
	}
	return NewSerialMux(name, port), nil
}

// NewRealSerialMux creates a SerialMux backed by the serial port at path.
func NewRealSerialMux(name, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(NewRealSerialPortFactory(), name, path, opts)
}
