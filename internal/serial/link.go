// Package serial reads sensor events from a serial port and writes commands
// back to it.
package serial

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	goserial "github.com/goburrow/serial"
	"go.uber.org/zap"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

var (
	ErrNotConnected = errors.New("serial port not connected")
	ErrLineTooLong  = errors.New("sensor line too long")
)

// DefaultMaxLine bounds one sensor line, newline included.
const DefaultMaxLine = 4096

type Config struct {
	Port        string
	Baud        int
	Retry       time.Duration
	ReadTimeout time.Duration
	MaxLine     int
}

// Opener opens the underlying port. Tests swap it for an in-memory stream.
type Opener func(Config) (io.ReadWriteCloser, error)

func OpenPort(cfg Config) (io.ReadWriteCloser, error) {
	return goserial.Open(&goserial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	})
}

type Link struct {
	cfg       Config
	open      Opener
	logger    *zap.Logger
	onBadLine func()

	mu   sync.Mutex
	port io.ReadWriteCloser
}

func NewLink(cfg Config, open Opener, logger *zap.Logger) *Link {
	if open == nil {
		open = OpenPort
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Link{cfg: cfg, open: open, logger: logger}
}

// OnBadLine registers a hook called for every line that fails to decode.
func (l *Link) OnBadLine(fn func()) {
	l.onBadLine = fn
}

// Run keeps the port open and forwards decoded events to out until ctx is
// done. A failed open or a broken read waits Retry before reconnecting.
func (l *Link) Run(ctx context.Context, out chan<- models.Event) error {
	for {
		port, err := l.open(l.cfg)
		if err != nil {
			l.logger.Error("open serial port", zap.String("port", l.cfg.Port), zap.Error(err))
		} else {
			l.logger.Info("serial port opened", zap.String("port", l.cfg.Port), zap.Int("baud", l.cfg.Baud))
			l.setPort(port)
			err = l.readLines(ctx, port, out)
			l.setPort(nil)
			port.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("serial read stopped, reconnecting", zap.Duration("retry", l.cfg.Retry), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.Retry):
		}
	}
}

// Send writes one command line to the sensor.
func (l *Link) Send(command string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.port == nil {
		return ErrNotConnected
	}
	if _, err := io.WriteString(l.port, command+"\n"); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port != nil
}

func (l *Link) setPort(p io.ReadWriteCloser) {
	l.mu.Lock()
	l.port = p
	l.mu.Unlock()
}

// readLines splits r into lines of at most MaxLine bytes. Longer lines are
// discarded up to their newline and reported as bad lines.
func (l *Link) readLines(ctx context.Context, r io.Reader, out chan<- models.Event) error {
	maxLine := l.cfg.MaxLine
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	br := bufio.NewReader(r)
	var pending []byte
	discarding := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk, err := br.ReadSlice('\n')
		if !discarding {
			pending = append(pending, chunk...)
			if len(pending) > maxLine {
				l.badLine(pending[:min(len(pending), 64)], fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, maxLine))
				pending = nil
				discarding = true
			}
		}
		if err != nil {
			if errors.Is(err, goserial.ErrTimeout) || errors.Is(err, bufio.ErrBufferFull) {
				continue
			}
			return err
		}
		if discarding {
			discarding = false
			continue
		}

		line := pending
		pending = nil
		ev, ok, err := Decode(line)
		if err != nil {
			l.badLine(line, err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Link) badLine(line []byte, err error) {
	l.logger.Warn("bad sensor line", zap.ByteString("line", bytes.TrimSpace(line)), zap.Error(err))
	if l.onBadLine != nil {
		l.onBadLine()
	}
}

// Decode parses one JSON line. Blank lines yield ok=false and no error.
func Decode(line []byte) (models.Event, bool, error) {
	var ev models.Event
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return ev, false, nil
	}
	if err := json.Unmarshal(line, &ev); err != nil {
		return ev, false, fmt.Errorf("decode event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return ev, false, err
	}
	return ev, true, nil
}
