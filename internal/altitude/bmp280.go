package altitude

import (
	"kismet-baro/internal/i2c"
	"kismet-baro/internal/sensors/bmp280"
)

func openBMP280(cfg Config) (Source, error) {
	path := cfg.I2CBus
	if path == "" {
		path = "/dev/i2c-1"
	}
	addr := cfg.I2CAddr
	if addr == 0 {
		addr = bmp280.DefaultAddress
	}

	dev, err := i2c.Open(path, addr)
	if err != nil {
		return nil, err
	}
	return newBMP280Source(dev, dev.Close, cfg.SeaLevelPa)
}

func newBMP280Source(dev bmp280.RegisterIO, closeFn func() error, seaLevelPa float64) (Source, error) {
	s, err := bmp280.New(dev)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}
	return &pressureSource{
		read: func() (float64, error) {
			r, err := s.Read()
			if err != nil {
				return 0, err
			}
			return r.PressurePa, nil
		},
		close:      closeFn,
		seaLevelPa: seaLevelPa,
	}, nil
}
