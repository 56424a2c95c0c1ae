package sensor

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ayusman/fallguard/internal/monitoring"
	"go.bug.st/serial"
)

// DefaultBaudRate is used when a SerialSource is created without a baud rate.
const DefaultBaudRate = 115200

// PortOpener opens a serial port. It exists so tests can substitute a fake port.
type PortOpener func(path string, baud int) (io.ReadWriteCloser, error)

// OpenSerialPort opens a real serial port with 8N1 framing.
func OpenSerialPort(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// SerialSource reads newline-terminated "x,y,z" readings from an
// accelerometer attached to a serial port. The device streams at its own
// rate, so the requested period only bounds how often samples are forwarded.
type SerialSource struct {
	path string
	baud int
	open PortOpener

	mu      sync.Mutex
	port    io.ReadWriteCloser
	running bool
	doneCh  chan struct{}
	onErr   ErrorHandler
}

// NewSerialSource creates a SerialSource for the device at path.
func NewSerialSource(path string, baud int) *SerialSource {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &SerialSource{
		path: path,
		baud: baud,
		open: OpenSerialPort,
	}
}

// SetOpener replaces the port opener.
func (s *SerialSource) SetOpener(open PortOpener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

func (s *SerialSource) OnError(fn ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onErr = fn
}

func (s *SerialSource) Start(period time.Duration, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	port, err := s.open(s.path, s.baud)
	if err != nil {
		return &RegistrationError{Source: s.path, Err: err}
	}

	s.port = port
	s.doneCh = make(chan struct{})
	s.running = true
	go s.read(port, period, h, s.doneCh)

	return nil
}

func (s *SerialSource) read(port io.Reader, period time.Duration, h Handler, doneCh chan struct{}) {
	defer close(doneCh)

	var last int64 = -1
	minGap := period.Milliseconds() / 2

	scan := bufio.NewScanner(port)
	for scan.Scan() {
		sample, err := ParseLine(scan.Text())
		if err != nil {
			monitoring.Debugf("serial sensor: skipping line: %v", err)
			continue
		}
		now := NowMillis()
		if last >= 0 && now-last < minGap {
			continue
		}
		last = now
		sample.Timestamp = now
		h(sample)
	}

	err := scan.Err()
	if err == nil {
		err = ErrStreamEnded
	}
	s.fail(doneCh, err)
}

// fail ends the session owning doneCh unless Stop already has.
func (s *SerialSource) fail(doneCh chan struct{}, err error) {
	s.mu.Lock()
	if !s.running || s.doneCh != doneCh {
		s.mu.Unlock()
		return
	}
	port, onErr := s.port, s.onErr
	s.port = nil
	s.running = false
	s.mu.Unlock()

	port.Close()
	err = fmt.Errorf("serial %s: %w", s.path, err)
	monitoring.Logf("serial sensor: read stopped: %v", err)
	if onErr != nil {
		onErr(err)
	}
}

func (s *SerialSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	port, doneCh := s.port, s.doneCh
	s.port = nil
	s.running = false
	s.mu.Unlock()

	err := port.Close()
	<-doneCh
	return err
}

func (s *SerialSource) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
