// Package usb implements the host bus over libusb via gousb. It opens
// boot-protocol HID keyboards and mice, claims their interfaces and
// serves interrupt IN transactions to the bridging engine.
//
// The toggle phase argument of Transact is accepted and ignored here:
// the host controller and kernel manage DATA0/DATA1 sequencing on a
// real bus, so this backend has nothing to do with the hint. The
// engine's toggle bookkeeping still runs; it simply has no observable
// effect on this backend.
package usb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gousb"

	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/registry"
)

const (
	bootSubclass     = 1
	protocolKeyboard = 1
	protocolMouse    = 2
)

// hidDevice is one opened boot-protocol device.
type hidDevice struct {
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	epIn  *gousb.InEndpoint

	class    registry.Class
	location byte
	ep       byte
	gone     bool
}

func (h *hidDevice) close() {
	if h.iface != nil {
		h.iface.Close()
	}
	if h.cfg != nil {
		_ = h.cfg.Close()
	}
	if h.dev != nil {
		_ = h.dev.Close()
	}
}

// Bus is a bridge.HostBus over gousb.
type Bus struct {
	ctx  *gousb.Context
	logg *slog.Logger

	devices  []*hidDevice
	selected byte
	seen     int
}

// NewBus initializes libusb. Close releases it.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{ctx: gousb.NewContext(), logg: logger}
}

// Close releases all devices and the libusb context.
func (b *Bus) Close() error {
	b.closeDevices()
	return b.ctx.Close()
}

func (b *Bus) closeDevices() {
	for _, d := range b.devices {
		d.close()
	}
	b.devices = nil
}

// bootProtocol returns the boot protocol of the first matching
// interface, or 0 when the device carries none.
func bootProtocol(desc *gousb.DeviceDesc) int {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassHID && int(alt.SubClass) == bootSubclass {
					switch int(alt.Protocol) {
					case protocolKeyboard, protocolMouse:
						return int(alt.Protocol)
					}
				}
			}
		}
	}
	return 0
}

// AnalyzeTopology diffs the set of attached boot HID devices against
// the last scan. The scan opens nothing; the filter callback sees every
// descriptor and rejects them all.
func (b *Bus) AnalyzeTopology() bridge.TopologyEvent {
	count := 0
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if bootProtocol(desc) != 0 {
			count++
		}
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		b.logg.Debug("topology scan failed", "error", err)
		return bridge.TopologyNone
	}

	prev := b.seen
	b.seen = count
	switch {
	case count > prev:
		return bridge.TopologyConnect
	case count < prev:
		return bridge.TopologyDisconnect
	default:
		return bridge.TopologyNone
	}
}

// InitializeDevice opens every attached boot HID device and claims its
// interrupt IN endpoint. Already-open devices are reopened from scratch
// so enumeration always starts from a clean claim.
func (b *Bus) InitializeDevice() error {
	b.closeDevices()

	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return bootProtocol(desc) != 0
	})
	if err != nil {
		for _, d := range devs {
			_ = d.Close()
		}
		return fmt.Errorf("usb: open devices: %w", err)
	}
	if len(devs) == 0 {
		return errors.New("usb: no boot HID device found")
	}

	for _, dev := range devs {
		hd, err := b.claim(dev)
		if err != nil {
			b.logg.Warn("device claim failed", "error", err)
			_ = dev.Close()
			continue
		}
		hd.location = byte(len(b.devices) + 1)
		b.devices = append(b.devices, hd)
		b.logg.Info("device claimed",
			"class", hd.class.String(),
			"location", hd.location,
			"endpoint", hd.ep)
	}
	if len(b.devices) == 0 {
		return errors.New("usb: no device could be claimed")
	}
	return nil
}

// claim resolves the boot HID interface and its interrupt IN endpoint.
func (b *Bus) claim(dev *gousb.Device) (*hidDevice, error) {
	dev.SetAutoDetach(true)

	cfg, err := dev.Config(1)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	for _, ifDesc := range cfg.Desc.Interfaces {
		for _, alt := range ifDesc.AltSettings {
			if alt.Class != gousb.ClassHID || int(alt.SubClass) != bootSubclass {
				continue
			}
			var class registry.Class
			switch int(alt.Protocol) {
			case protocolKeyboard:
				class = registry.ClassKeyboard
			case protocolMouse:
				class = registry.ClassMouse
			default:
				continue
			}

			iface, err := cfg.Interface(ifDesc.Number, alt.Alternate)
			if err != nil {
				_ = cfg.Close()
				return nil, fmt.Errorf("claim interface %d: %w", ifDesc.Number, err)
			}
			for _, epDesc := range alt.Endpoints {
				if epDesc.Direction != gousb.EndpointDirectionIn || epDesc.TransferType != gousb.TransferTypeInterrupt {
					continue
				}
				epIn, err := iface.InEndpoint(epDesc.Number)
				if err != nil {
					iface.Close()
					_ = cfg.Close()
					return nil, fmt.Errorf("IN endpoint %d: %w", epDesc.Number, err)
				}
				return &hidDevice{
					dev:   dev,
					cfg:   cfg,
					iface: iface,
					epIn:  epIn,
					class: class,
					ep:    byte(epDesc.Number),
				}, nil
			}
			iface.Close()
		}
	}
	_ = cfg.Close()
	return nil, errors.New("no boot HID interrupt IN endpoint")
}

// SearchByClass returns the first claimed device of the given class.
func (b *Bus) SearchByClass(class registry.Class) (location, ep byte, ok bool) {
	for _, d := range b.devices {
		if d.class == class && !d.gone {
			return d.location, d.ep, true
		}
	}
	return 0, 0, false
}

// SelectPort routes subsequent transactions to the given location.
func (b *Bus) SelectPort(location byte) { b.selected = location }

func (b *Bus) find(location byte) *hidDevice {
	for _, d := range b.devices {
		if d.location == location {
			return d
		}
	}
	return nil
}

// Transact reads one interrupt IN transfer from the selected device.
// A timeout means the device had nothing to report and maps to ErrNAK.
func (b *Bus) Transact(ep byte, _ bool, buf []byte, timeout time.Duration) (int, error) {
	d := b.find(b.selected)
	if d == nil || d.gone || d.ep != ep {
		return 0, bridge.ErrNAK
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut) || errors.Is(err, gousb.TransferCancelled) {
			return 0, bridge.ErrNAK
		}
		if errors.Is(err, gousb.ErrorNoDevice) || errors.Is(err, gousb.ErrorIO) {
			d.gone = true
		}
		return 0, fmt.Errorf("usb: interrupt read: %w", err)
	}
	return n, nil
}

// Disconnected reports whether any claimed device dropped off the bus.
func (b *Bus) Disconnected() bool {
	for _, d := range b.devices {
		if d.gone {
			return true
		}
	}
	return false
}

// Reset releases every claimed device. The next topology scan and
// enumeration bring survivors back.
func (b *Bus) Reset() error {
	b.closeDevices()
	b.seen = 0
	return nil
}
