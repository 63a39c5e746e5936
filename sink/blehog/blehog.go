// Package blehog delivers canonical reports over BLE HID-over-GATT:
// it publishes a HID service with boot keyboard and boot mouse input
// report characteristics and notifies subscribed centrals on every
// report.
package blehog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"tinygo.org/x/bluetooth"

	"github.com/hidlink/hidlink/report"
)

// hidInformation is the HID Information characteristic payload:
// bcdHID 1.11, country code 0, flags normally-connectable.
var hidInformation = []byte{0x11, 0x01, 0x00, 0x02}

// Config carries the advertiser tunables.
type Config struct {
	LocalName string `help:"Advertised device name" default:"hidlink"`
}

// ErrNoCentral is returned by Send while no central is connected.
var ErrNoCentral = errors.New("blehog: no central connected")

// Sink is a bridge.ReportSink over BLE HID-over-GATT.
type Sink struct {
	cfg     Config
	logg    *slog.Logger
	adapter *bluetooth.Adapter

	setup     sync.Once
	setupErr  error
	kbdChar   bluetooth.Characteristic
	mouseChar bluetooth.Characteristic

	centrals atomic.Int32
}

// New builds a sink over the default adapter. Reset brings it up.
func New(cfg Config, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{cfg: cfg, logg: logger, adapter: bluetooth.DefaultAdapter}
}

// Send notifies the matching input report characteristic. Reports for
// ids without a characteristic are dropped silently; they have no
// HID-over-GATT representation.
func (s *Sink) Send(id report.ID, data []byte) error {
	if s.centrals.Load() == 0 {
		return ErrNoCentral
	}
	var char *bluetooth.Characteristic
	switch id {
	case report.KeyboardID:
		char = &s.kbdChar
	case report.MouseID:
		char = &s.mouseChar
	default:
		return nil
	}
	if _, err := char.Write(data); err != nil {
		return fmt.Errorf("blehog: notify failed: %w", err)
	}
	return nil
}

// Disconnected reports whether no central is subscribed.
func (s *Sink) Disconnected() bool { return s.centrals.Load() == 0 }

// Reset brings the adapter, the HID service and advertising up. The
// one-time GATT setup survives later resets; only advertising restarts.
func (s *Sink) Reset() error {
	s.setup.Do(func() { s.setupErr = s.bringUp() })
	if s.setupErr != nil {
		return s.setupErr
	}
	adv := s.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{bluetooth.ServiceUUIDHumanInterfaceDevice},
	}); err != nil {
		return fmt.Errorf("blehog: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("blehog: start advertising: %w", err)
	}
	s.logg.Info("advertising HID service", "name", s.cfg.LocalName)
	return nil
}

func (s *Sink) bringUp() error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("blehog: enable adapter: %w", err)
	}

	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			s.centrals.Add(1)
			s.logg.Info("central connected", "device", device.Address.String())
			return
		}
		if s.centrals.Add(-1) < 0 {
			s.centrals.Store(0)
		}
		s.logg.Info("central disconnected", "device", device.Address.String())
	})

	err := s.adapter.AddService(&bluetooth.Service{
		UUID: bluetooth.ServiceUUIDHumanInterfaceDevice,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID:  bluetooth.CharacteristicUUIDHIDInformation,
				Value: hidInformation,
				Flags: bluetooth.CharacteristicReadPermission,
			},
			{
				UUID:  bluetooth.CharacteristicUUIDProtocolMode,
				Value: []byte{0x00}, // boot protocol
				Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWriteWithoutResponsePermission,
			},
			{
				Handle: &s.kbdChar,
				UUID:   bluetooth.CharacteristicUUIDBootKeyboardInputReport,
				Value:  make([]byte, 8),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
			{
				Handle: &s.mouseChar,
				UUID:   bluetooth.CharacteristicUUIDBootMouseInputReport,
				Value:  make([]byte, 4),
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("blehog: add HID service: %w", err)
	}
	return nil
}
