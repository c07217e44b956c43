// Package procon drives the rumble motors of a Nintendo Switch Pro
// Controller over USB. It implements the back-end side of the rumble
// channel only: the controller has no force actuator, so combined-force
// commands are accepted and ignored, and it offers no conditional
// effect slots, so uploads are rejected.
package procon

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/gousb"

	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
)

const (
	vendorID           = 0x057E
	productProcon      = 0x2009
	productProconClone = 0x2019
	productProcon2     = 0x2069

	usbConfigNumber    = 1
	usbInterfaceNumber = 1
)

// ErrNoController is returned by Open when no supported controller is
// connected.
var ErrNoController = errors.New("no Switch Pro Controller found")

// ErrNoSlots marks the upload rejection; the controller exposes no
// conditional effect hardware.
var ErrNoSlots = errors.New("controller has no conditional effect slots")

// Device is one claimed controller.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	iface *gousb.Interface
	epOut *gousb.OutEndpoint

	mu       sync.Mutex
	packetID byte
}

// Open claims the first connected Pro Controller.
func Open() (*Device, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != gousb.ID(vendorID) {
			return false
		}
		switch desc.Product {
		case productProcon, productProconClone, productProcon2:
			return true
		}
		return false
	})
	if err != nil && len(devs) == 0 {
		ctx.Close()
		return nil, fmt.Errorf("scan USB devices: %w", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, ErrNoController
	}

	// One controller is enough; release any duplicates.
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev := devs[0]

	if err := dev.SetAutoDetach(true); err != nil {
		slog.Debug("auto-detach not supported", "error", err)
	}

	cfg, iface, epOut, err := claimInterface(dev, usbConfigNumber, usbInterfaceNumber)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	return &Device{ctx: ctx, dev: dev, cfg: cfg, iface: iface, epOut: epOut}, nil
}

// claimInterface opens the HID interface and resolves its output
// endpoint.
func claimInterface(dev *gousb.Device, configNum, ifaceNum int) (*gousb.Config, *gousb.Interface, *gousb.OutEndpoint, error) {
	cfg, err := dev.Config(configNum)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open config %d: %w", configNum, err)
	}

	intf, err := cfg.Interface(ifaceNum, 0)
	if err != nil {
		cfg.Close()
		return nil, nil, nil, fmt.Errorf("failed to claim interface %d: %w", ifaceNum, err)
	}

	var epOut *gousb.OutEndpoint
	for _, e := range intf.Setting.Endpoints {
		if e.Direction == gousb.EndpointDirectionOut &&
			(e.TransferType == gousb.TransferTypeInterrupt || e.TransferType == gousb.TransferTypeBulk) {
			epOut, err = intf.OutEndpoint(e.Number)
			if err != nil {
				intf.Close()
				cfg.Close()
				return nil, nil, nil, err
			}
			break
		}
	}
	if epOut == nil {
		intf.Close()
		cfg.Close()
		return nil, nil, nil, fmt.Errorf("interface %d has no output endpoint", ifaceNum)
	}

	return cfg, intf, epOut, nil
}

// Close releases the claimed interface and the USB context. The motors
// are stopped first; a write failure at that point is not worth
// surfacing over the release itself.
func (d *Device) Close() error {
	_ = d.SetRumble(0, 0)

	if d.iface != nil {
		d.iface.Close()
	}
	if d.cfg != nil {
		d.cfg.Close()
	}
	var err error
	if d.dev != nil {
		err = d.dev.Close()
	}
	if closeErr := d.ctx.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (d *Device) String() string {
	return fmt.Sprintf("Switch Pro Controller (bus %d addr %d)", d.dev.Desc.Bus, d.dev.Desc.Address)
}

// SetRumble drives both motors: the strong magnitude on the left
// actuator's low band, the weak magnitude on the right actuator's high
// band. Magnitudes saturate at the 16-bit ceiling.
func (d *Device) SetRumble(strong, weak uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := make([]byte, 64)
	report[0] = 0x10 // rumble-only output report
	report[1] = d.packetID
	d.packetID = (d.packetID + 1) & 0x0F

	left := encodeMotor(highBandNeutralHz, 0, lowBandStrongHz, normalize(strong))
	right := encodeMotor(highBandWeakHz, normalize(weak), lowBandNeutralHz, 0)
	copy(report[2:6], left[:])
	copy(report[6:10], right[:])

	_, err := d.epOut.Write(report)
	if err != nil {
		return fmt.Errorf("write rumble report: %w", err)
	}
	return nil
}

// normalize maps a command magnitude onto [0, 1].
func normalize(magnitude uint32) float64 {
	if magnitude > effect.MaxMagnitude {
		magnitude = effect.MaxMagnitude
	}
	return float64(magnitude) / float64(effect.MaxMagnitude)
}

// Control is the back-end callback. Rumble commands reach the motors;
// combined-force commands are ignored because the controller has no
// force actuator, and that must never look like a protocol violation.
func (d *Device) Control(_ any, cmd *device.Command) error {
	switch cmd.Kind {
	case device.StartRumble:
		return d.controlRumble(cmd.Rumble.Strong, cmd.Rumble.Weak)
	case device.StopRumble:
		return d.controlRumble(0, 0)
	case device.UploadUncombinable:
		return fmt.Errorf("upload effect %d: %w", cmd.Uncomb.ID, ErrNoSlots)
	case device.StartCombined, device.StopCombined:
		return nil
	default:
		// Uncombinable lifecycle commands cannot occur: nothing is ever
		// resident because every upload is rejected.
		return nil
	}
}

// controlRumble guards the infallible rumble path: a USB write failure
// is logged, not returned, because only uploads may fail.
func (d *Device) controlRumble(strong, weak uint32) error {
	if err := d.SetRumble(strong, weak); err != nil {
		slog.Error("rumble write failed", "error", err)
	}
	return nil
}
