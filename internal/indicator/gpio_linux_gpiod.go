//go:build linux && (arm || arm64)

package indicator

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "kismet-baro-led"

// openLine requests the header pin named GPIO<pin> as an output, initially
// low. The chip is looked up by line name since header pins are not on
// gpiochip0 on every Pi model.
func openLine(pin int) (line, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	name := fmt.Sprintf("GPIO%d", pin)

	chip, offset, err := gpiocdev.FindLine(name)
	if err != nil {
		return nil, fmt.Errorf("indicator: gpio line %q: %w", name, err)
	}
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("indicator: request %s on %s: %w", name, chip, err)
	}
	return l, nil
}

var openLineFn = openLine
