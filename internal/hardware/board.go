package hardware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"reflow_oven/internal/logger"
	"reflow_oven/internal/reflow"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the oven I/O board's link speed.
	DefaultBaudRate = 115200
	// DefaultStaleAfter is how old the last thermocouple line may be before
	// Read reports no reading.
	DefaultStaleAfter = 500 * time.Millisecond
)

var errNotConnected = errors.New("board not connected")

// Config selects the serial port of the oven I/O board.
type Config struct {
	Port       string        `mapstructure:"port"`
	BaudRate   int           `mapstructure:"baud_rate"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

// Board is the serial link to the oven I/O board. The board streams one
// thermocouple line per conversion:
//
//	T,<celsius>,<fault>
//
// where fault is 0 (ok), 1 (open), 2 (short to GND) or 3 (short to VCC).
// The host switches outputs with E<index><0|1>, F<0|1> and D<O|C|H>.
type Board struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	cancel context.CancelFunc
	done   chan struct{}

	latest atomic.Pointer[reflow.Reading]
}

var (
	_ reflow.Sensor  = (*Board)(nil)
	_ reflow.Outputs = (*Board)(nil)
)

// New creates an unconnected board.
func New(cfg Config, log *logger.Logger) *Board {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Board{cfg: cfg, log: log.Named("board"), now: time.Now}
}

// Ports lists the serial ports present on this machine.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Connect opens the serial port and starts reading thermocouple lines until
// ctx is cancelled or Close is called.
func (b *Board) Connect(ctx context.Context) error {
	port, err := serial.Open(b.cfg.Port, &serial.Mode{BaudRate: b.cfg.BaudRate})
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", b.cfg.Port, err)
	}
	if err := b.attach(ctx, port); err != nil {
		_ = port.Close()
		return err
	}
	b.log.Infow("board_connected", "port", b.cfg.Port, "baud", b.cfg.BaudRate)
	return nil
}

// attach starts the read loop on an already open link.
func (b *Board) attach(ctx context.Context, rw io.ReadWriteCloser) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return errors.New("board already connected")
	}

	ctx, cancel := context.WithCancel(ctx)
	b.conn = rw
	b.cancel = cancel
	b.done = make(chan struct{})

	go b.readLines(ctx, rw, b.done)
	go func() {
		<-ctx.Done()
		_ = rw.Close()
	}()
	return nil
}

// Close stops the read loop and closes the port.
func (b *Board) Close() error {
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return nil
	}
	b.cancel()
	done := b.done
	b.conn = nil
	b.mu.Unlock()

	<-done
	return nil
}

// Read returns the latest thermocouple reading. It never blocks.
func (b *Board) Read() reflow.Reading {
	r := b.latest.Load()
	now := b.now()
	if r == nil || now.Sub(r.At) > b.cfg.StaleAfter {
		return reflow.Reading{Fault: reflow.SensorNoReading, At: now}
	}
	return *r
}

func (b *Board) SetElement(index int, on bool) error {
	if index < 0 || index > 9 {
		return fmt.Errorf("element index %d out of range", index)
	}
	return b.send("E" + strconv.Itoa(index) + bit(on))
}

func (b *Board) SetFan(on bool) error {
	return b.send("F" + bit(on))
}

func (b *Board) SetDoor(cmd reflow.DoorCommand) error {
	switch cmd {
	case reflow.DoorOpen:
		return b.send("DO")
	case reflow.DoorClosed:
		return b.send("DC")
	case reflow.DoorHold:
		return b.send("DH")
	}
	return fmt.Errorf("unknown door command %q", cmd)
}

func (b *Board) send(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errNotConnected
	}
	if _, err := io.WriteString(b.conn, line+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}
	return nil
}

func (b *Board) readLines(ctx context.Context, r io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reading, err := parseLine(line, b.now())
		if err != nil {
			b.log.Warnw("board_line_invalid", "err", err, "line", line)
			continue
		}
		b.latest.Store(&reading)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		b.log.Errorw("board_read_failed", "err", err)
	}
}

// parseLine decodes a "T,<celsius>,<fault>" line.
func parseLine(line string, at time.Time) (reflow.Reading, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 || parts[0] != "T" {
		return reflow.Reading{}, fmt.Errorf("invalid line format: %q", line)
	}
	tempC, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return reflow.Reading{}, fmt.Errorf("invalid temperature: %w", err)
	}
	code, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return reflow.Reading{}, fmt.Errorf("invalid fault code: %w", err)
	}
	fault := reflow.FaultCode(code)
	if fault > reflow.SensorShortVCC {
		return reflow.Reading{}, fmt.Errorf("fault code %d out of range", code)
	}
	return reflow.Reading{TempC: tempC, Fault: fault, At: at}, nil
}

func bit(on bool) string {
	if on {
		return "1"
	}
	return "0"
}
