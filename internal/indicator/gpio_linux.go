//go:build linux

package indicator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "pathplanner-led"

// openLine requests pin as a digital output, initially low, through the
// GPIO character device. The line is looked up by its "GPIO<pin>" name on
// the configured chip and then on every other chip; failing that, pin is
// used as an offset on the configured chip.
func openLine(chipName string, pin int) (driver, error) {
	if pin < 0 {
		return nil, fmt.Errorf("indicator: invalid gpio pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{chipName}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") && name != chipName {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodLine{chip: chip, line: line}, nil
	}

	line, err := gpiocdev.RequestLine(chipName, pin, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("indicator: gpio %s offset %d: %w", chipName, pin, err)
	}
	return &gpiodLine{line: line}, nil
}

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) SetValue(v int) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("indicator: gpio line not open")
	}
	return g.line.SetValue(v)
}

func (g *gpiodLine) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	_ = g.line.SetValue(0)
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
