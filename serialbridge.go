package ov2680

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// ErrBridgeTimeout is returned when the bridge does not answer in time.
var ErrBridgeTimeout = errors.New("serial bridge timeout")

const bridgeTimeout = 500 * time.Millisecond

// SerialBridge is a Transport for USB-CDC I2C bridges speaking the framed
// ASCII protocol: every packet is "   #", a 4 digit hex length, a 4 letter
// command and a hex payload. Responses carry a 2 digit status (00 = ACK)
// before their payload and end in a 4 byte CRC.
//
//	IWRB<dev:2><reg:4><data...>   burst write
//	IRRD<dev:2><reg:4><len:2>     read len bytes
type SerialBridge struct {
	port    io.ReadWriteCloser
	reader  io.Reader
	address uint8

	mu sync.Mutex
}

// OpenSerialBridge opens the bridge on portName, or autodetects it by USB
// VID/PID when portName is empty. address is the sensor's 7 bit bus address.
func OpenSerialBridge(portName string, address uint8) (*SerialBridge, error) {
	var err error
	if portName == "" {
		portName, err = getSerialPort()
		if err != nil {
			return nil, fmt.Errorf("failed to open serial bridge: %w", err)
		}
		if portName == "" {
			return nil, fmt.Errorf("failed to open serial bridge: no bridge found")
		}
	}

	p, err := serial.Open(portName, &serial.Mode{BaudRate: 115200}) // USB-CDC, the baud rate is ignored by the device
	if err != nil {
		return nil, fmt.Errorf("failed to open serial bridge: %w", err)
	}
	if err := p.SetReadTimeout(bridgeTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	return NewSerialBridge(p, address), nil
}

// NewSerialBridge wraps an already open port. Reads returning no data are
// treated as a timeout, matching serial.Port semantics with a read timeout.
func NewSerialBridge(port io.ReadWriteCloser, address uint8) *SerialBridge {
	return &SerialBridge{port: port, reader: timeoutReader{port}, address: address}
}

func (b *SerialBridge) WriteBurst(addr uint16, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := b.sendCommand(fmt.Sprintf("IWRB%02X%04X%s", b.address, addr, strings.ToUpper(hex.EncodeToString(data))))
	if err != nil {
		return fmt.Errorf("failed to write registers: %w", err)
	}
	return nil
}

func (b *SerialBridge) Read(addr uint16, width int) (uint32, error) {
	if width < 1 || width > 4 {
		return 0, fmt.Errorf("invalid read width %d", width)
	}
	payload, err := b.sendCommand(fmt.Sprintf("IRRD%02X%04X%02X", b.address, addr, width))
	if err != nil {
		return 0, fmt.Errorf("failed to read register: %w", err)
	}

	value, err := hex.DecodeString(string(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to decode register value: %w", err)
	}
	if len(value) != width {
		return 0, fmt.Errorf("failed to read register: got %d byte(s), want %d", len(value), width)
	}

	var v uint32
	for _, c := range value {
		v = v<<8 | uint32(c)
	}
	return v, nil
}

func (b *SerialBridge) Close() error {
	return b.port.Close()
}

// sendCommand writes one framed command and returns the payload of the
// matching response after checking its status.
func (b *SerialBridge) sendCommand(cmd string) ([]byte, error) {
	cmdType := cmd[0:4]

	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.port.Write([]byte(fmt.Sprintf("   #%04X%s", len(cmd), cmd)))
	if err != nil {
		return nil, fmt.Errorf("failed to write to serial port: %w", err)
	}

	for {
		packetType, data, err := b.readPacket()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if packetType != cmdType {
			continue
		}
		if len(data) < 2 {
			return nil, fmt.Errorf("response without status")
		}
		status, err := strconv.ParseUint(string(data[:2]), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("failed to decode status: %w", err)
		}
		if status != 0 {
			return nil, fmt.Errorf("device NACK (status 0x%02X)", status)
		}
		return data[2:], nil
	}
}

func (b *SerialBridge) readPacket() (packetType string, data []byte, err error) {
	if err := b.sync(); err != nil {
		return "", nil, err
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(b.reader, header); err != nil {
		return "", nil, fmt.Errorf("failed to read header from serial port: %w", err)
	}
	packetType = string(header[4:])

	length, err := strconv.ParseUint(string(header[:4]), 16, 16)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode packet length: %w", err)
	}
	if length < 8 {
		return "", nil, fmt.Errorf("invalid packet length %d", length)
	}

	data = make([]byte, length-8)
	if _, err := io.ReadFull(b.reader, data); err != nil {
		return "", nil, fmt.Errorf("failed to read data from serial port: %w", err)
	}

	crc := make([]byte, 4)
	if _, err := io.ReadFull(b.reader, crc); err != nil {
		return "", nil, fmt.Errorf("failed to read CRC from serial port: %w", err)
	}

	return packetType, data, nil
}

// sync consumes bytes until the "   #" packet marker.
func (b *SerialBridge) sync() error {
	const marker = "   #"
	matched := 0
	c := make([]byte, 1)
	for matched < len(marker) {
		if _, err := io.ReadFull(b.reader, c); err != nil {
			return fmt.Errorf("failed to read header from serial port: %w", err)
		}
		switch {
		case c[0] == marker[matched]:
			matched++
		case c[0] == ' ':
			// extra padding, stay aligned on the last three spaces
		default:
			matched = 0
		}
	}
	return nil
}

type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, ErrBridgeTimeout
	}
	return n, err
}

func getSerialPort() (string, error) {
	portDetails, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to autodetect serial bridge: %w", err)
	}

	for _, port := range portDetails {
		if port.IsUSB && strings.EqualFold(port.VID, VENDOR_ID) && slices.ContainsFunc(PRODUCT_IDs, func(pid string) bool {
			return strings.EqualFold(pid, port.PID)
		}) {
			return port.Name, nil
		}
	}

	return "", nil
}
