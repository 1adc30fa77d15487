package hal

import (
	"context"
	"fmt"
	"time"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Enabled bool
	Hz      int
	Ticks   uint64

	// Input types the serial console's input on the keyboard.
	Input bool
}

// RunHeadless runs the board without opening a window. It returns nil after
// cfg.Ticks frames, or ctx.Err() when ctx ends first.
func RunHeadless(ctx context.Context, board BoardConfig, newApp func(Board) (func() error, error), cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}

	h, err := newHostBoard(board)
	if err != nil {
		return err
	}
	step, err := newApp(h)
	if err != nil {
		return err
	}
	if cfg.Input {
		go func() {
			if err := h.kbd.feed(h.serial); err != nil {
				h.logger.WriteLineString("serial input: " + err.Error())
			}
		}()
	}

	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}
	t := time.NewTicker(d)
	defer t.Stop()

	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			h.advance()
			if step != nil {
				if err := step(); err != nil {
					return err
				}
			}
			tick++
			if cfg.Ticks > 0 && tick >= cfg.Ticks {
				return nil
			}
		}
	}
}
