//go:build !linux

package stick

import (
	"fmt"
	"os"
)

func openSerial(path string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("stick: serial not supported on this platform")
}
