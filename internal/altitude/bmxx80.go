package altitude

import (
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// openBMXX80 uses the periph driver, which also covers the BMP180 (the
// successor of the BMP085 found on older logging rigs).
func openBMXX80(cfg Config) (Source, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("altitude: periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("altitude: i2c bus %q: %w", cfg.I2CBus, err)
	}
	addr := cfg.I2CAddr
	if addr == 0 {
		addr = 0x77
	}
	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("altitude: bmxx80 init: %w", err)
	}

	return &pressureSource{
		read: func() (float64, error) {
			var e physic.Env
			if err := dev.Sense(&e); err != nil {
				return 0, fmt.Errorf("altitude: bmxx80 sense: %w", err)
			}
			return float64(e.Pressure) / float64(physic.Pascal), nil
		},
		close: func() error {
			_ = dev.Halt()
			return bus.Close()
		},
		seaLevelPa: cfg.SeaLevelPa,
	}, nil
}
