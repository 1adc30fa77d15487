//go:build !cgo

package hal

import "errors"

func RunWindow(_ BoardConfig, _ func(Board) (func() error, error)) error {
	return errors.New("window mode requires cgo (build/run with CGO_ENABLED=1)")
}
