//go:build !linux

package indicator

import "fmt"

func openLine(chipName string, pin int) (driver, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}
