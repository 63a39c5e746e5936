package bridge

import (
	"fmt"
	"time"
)

// Config carries the engine tunables. Values are read once at
// construction; the engine never writes configuration. Defaults mirror
// the reference hardware.
type Config struct {
	// TickInterval is the cooperative scheduler period.
	TickInterval time.Duration `help:"Tick interval of the bridging loop" default:"1ms" env:"HIDLINK_TICK_INTERVAL"`
	// SettleDelay is the pause after a hot-plug signal before
	// enumeration, waiting out device power stabilization.
	SettleDelay time.Duration `help:"Settle delay between hot-plug and enumeration" default:"200ms"`
	// TransactTimeout bounds a single IN transaction.
	TransactTimeout time.Duration `help:"Timeout for one host bus transaction" default:"5ms"`
	// NKROOffset is the vendor calibration constant added to keycodes
	// decoded from NKRO bitmaps.
	NKROOffset uint8 `help:"Keycode offset applied to NKRO bitmap positions" default:"4"`
	// PollGamepads additionally discovers gamepad-class devices. They
	// are tracked in the registry and polled, but no canonical shape
	// exists for them, so their reports are stored and not forwarded.
	PollGamepads bool `help:"Also discover and track gamepad-class devices" default:"false"`
}

// Validate rejects values the cooperative model cannot honor.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %v", c.TickInterval)
	}
	if c.TransactTimeout <= 0 {
		return fmt.Errorf("transact timeout must be positive, got %v", c.TransactTimeout)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must not be negative, got %v", c.SettleDelay)
	}
	return nil
}
