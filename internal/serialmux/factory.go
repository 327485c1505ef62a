package serialmux

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the slice of a serial port the mux uses. Tests and the
// replay mux satisfy it without hardware.
type SerialPorter interface {
	io.ReadWriteCloser
}

// NewRealSerialMux opens the sensor at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// bytes buffered before open usually start mid-line
	_ = port.ResetInputBuffer()
	return NewSerialMux[serial.Port](port), nil
}

// ListPorts returns the serial device paths currently visible to the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
