package sim

import (
	"time"

	"github.com/hidlink/hidlink/registry"
)

// Demo drives a scripted session against the bus: a keyboard and a
// mouse attach after a short delay, then the keyboard types and the
// mouse wiggles on fixed periods. Step advances the script by dt and is
// meant to run from the same tick loop as the engine.
type Demo struct {
	bus  *Bus
	kbd  *Device
	mou  *Device
	t    time.Duration
	done time.Duration

	nextKey   time.Duration
	nextMouse time.Duration
	keyDown   bool
	keycode   byte
}

// NewDemo wires a demo script onto an empty bus.
func NewDemo(bus *Bus) *Demo {
	return &Demo{
		bus:       bus,
		kbd:       &Device{Class: registry.ClassKeyboard, Location: 1, Endpoint: 0x01},
		mou:       &Device{Class: registry.ClassMouse, Location: 2, Endpoint: 0x02},
		nextKey:   time.Second,
		nextMouse: 1500 * time.Millisecond,
		keycode:   0x04,
	}
}

// Step advances the script by dt.
func (d *Demo) Step(dt time.Duration) {
	d.t += dt

	if d.done == 0 && d.t >= 500*time.Millisecond {
		d.done = d.t
		d.bus.Attach(d.kbd, d.mou)
	}
	if d.done == 0 {
		return
	}

	if d.t >= d.nextKey {
		d.nextKey += 250 * time.Millisecond
		if d.keyDown {
			d.kbd.Queue([]byte{0, 0, 0, 0, 0, 0, 0, 0})
			d.keycode++
			if d.keycode > 0x1d {
				d.keycode = 0x04
			}
		} else {
			d.kbd.Queue([]byte{0, 0, d.keycode, 0, 0, 0, 0, 0})
		}
		d.keyDown = !d.keyDown
	}

	if d.t >= d.nextMouse {
		d.nextMouse += 100 * time.Millisecond
		dx := byte(3)
		if (d.t/time.Second)%2 == 1 {
			dx = 0xfd
		}
		d.mou.Queue([]byte{0, dx, 0x01})
	}
}
