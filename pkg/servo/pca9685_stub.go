//go:build !linux

package servo

import "errors"

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
		MinPulseUs: 500,
		MaxPulseUs: 2500,
	}
}

// OpenPCA9685 requires Linux i2c-dev; other platforms run simulated.
func OpenPCA9685(cfg PCA9685Config) (Bus, error) {
	return nil, errors.New("servo: PCA9685 requires linux i2c-dev")
}
