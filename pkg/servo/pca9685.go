//go:build linux

package servo

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/elazer/go-sunny/internal/log"
)

// PCA9685 register map and i2c-dev ioctl.
const (
	i2cSlave = 0x0703

	regMode1    = 0x00
	regPrescale = 0xFE
	regLed0OnL  = 0x06

	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80

	// 25 MHz internal oscillator, 12-bit counter, 50 Hz servo frame.
	oscClock  = 25000000.0
	pwmFreq   = 50.0
	frameUs   = 20000.0
	pwmCounts = 4096.0
)

// Default servo pulse range in microseconds.
const (
	DefaultMinPulseUs = 500
	DefaultMaxPulseUs = 2500
)

// PCA9685Config locates the controller and sets the servo pulse range.
type PCA9685Config struct {
	Device     string
	Address    int
	MinPulseUs int
	MaxPulseUs int
}

// DefaultPCA9685Config returns the standard Raspberry Pi wiring.
func DefaultPCA9685Config() PCA9685Config {
	return PCA9685Config{
		Device:     "/dev/i2c-1",
		Address:    0x40,
		MinPulseUs: DefaultMinPulseUs,
		MaxPulseUs: DefaultMaxPulseUs,
	}
}

// PCA9685 drives servos through a PCA9685 PWM controller on an i2c-dev
// device. Sixteen channels, 50 Hz.
type PCA9685 struct {
	cfg PCA9685Config

	mu     sync.Mutex
	file   *os.File
	closed bool
}

var _ Bus = (*PCA9685)(nil)

// OpenPCA9685 opens the i2c device and programs the 50 Hz prescaler.
func OpenPCA9685(cfg PCA9685Config) (*PCA9685, error) {
	file, err := os.OpenFile(cfg.Device, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("servo: open %s: %w", cfg.Device, err)
	}

	if err := unix.IoctlSetInt(int(file.Fd()), i2cSlave, cfg.Address); err != nil {
		file.Close()
		return nil, fmt.Errorf("servo: select address 0x%02x: %w", cfg.Address, err)
	}

	b := &PCA9685{cfg: cfg, file: file}
	if err := b.init(); err != nil {
		file.Close()
		return nil, err
	}

	log.Info("PCA9685 ready", "device", cfg.Device, "address", fmt.Sprintf("0x%02x", cfg.Address))
	return b, nil
}

// init puts the chip to sleep, sets the prescaler, and wakes it with
// register auto-increment enabled.
func (b *PCA9685) init() error {
	prescaleF := oscClock/(pwmCounts*pwmFreq) - 0.5
	prescale := byte(prescaleF)

	if err := b.writeReg(regMode1, mode1Sleep); err != nil {
		return err
	}
	if err := b.writeReg(regPrescale, prescale); err != nil {
		return err
	}
	if err := b.writeReg(regMode1, mode1AutoInc); err != nil {
		return err
	}
	// Oscillator startup time per datasheet.
	time.Sleep(time.Millisecond)
	return b.writeReg(regMode1, mode1AutoInc|mode1Restart)
}

func (b *PCA9685) writeReg(reg, value byte) error {
	if _, err := b.file.Write([]byte{reg, value}); err != nil {
		return fmt.Errorf("servo: write reg 0x%02x: %w", reg, err)
	}
	return nil
}

// Write sets a channel's PWM to the pulse for the given angle.
func (b *PCA9685) Write(channel int, angle float64) WriteResult {
	if channel < 0 || channel > 15 {
		return WriteResult{
			Status: WriteInvalidChannel,
			Err:    fmt.Errorf("servo: channel %d out of range", channel),
		}
	}
	if angle < 0 {
		angle = 0
	} else if angle > 180 {
		angle = 180
	}

	pulseUs := float64(b.cfg.MinPulseUs) + angle/180.0*float64(b.cfg.MaxPulseUs-b.cfg.MinPulseUs)
	off := uint16(pulseUs / frameUs * pwmCounts)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.file == nil {
		return WriteResult{Status: WriteHardwareUnavailable, Err: os.ErrClosed}
	}

	reg := byte(regLed0OnL + 4*channel)
	buf := []byte{reg, 0, 0, byte(off & 0xff), byte(off >> 8)}
	if _, err := b.file.Write(buf); err != nil {
		return WriteResult{
			Status: WriteHardwareUnavailable,
			Err:    fmt.Errorf("servo: channel %d write: %w", channel, err),
		}
	}
	return WriteResult{Status: WriteOK}
}

// Available reports whether the device is open.
func (b *PCA9685) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.file != nil
}

// Close releases the i2c device. Idempotent.
func (b *PCA9685) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
