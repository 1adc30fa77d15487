package hal

import (
	"bufio"
	"io"
)

type hostKeyboard struct {
	ch     chan KeyEvent
	notify func()
}

func newHostKeyboard(notify func()) *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64), notify: notify}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

// push queues ev and raises the keyboard line. Events are dropped while the
// queue is full.
func (k *hostKeyboard) push(ev KeyEvent) {
	select {
	case k.ch <- ev:
	default:
		return
	}
	if k.notify != nil {
		k.notify()
	}
}

// feed types the text read from r until it ends. It lets a headless board
// take keyboard input from the serial console.
func (k *hostKeyboard) feed(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		c, _, err := br.ReadRune()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		switch c {
		case '\r':
			continue
		case '\n':
			k.push(KeyEvent{Code: KeyEnter, Press: true})
		case '\t':
			k.push(KeyEvent{Code: KeyTab, Press: true})
		case 0x08, 0x7f:
			k.push(KeyEvent{Code: KeyBackspace, Press: true})
		default:
			k.push(KeyEvent{Press: true, Rune: c})
		}
	}
}
