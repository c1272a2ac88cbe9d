//go:build linux

package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/sweeney/ble-button/internal/adv"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/peripheral"
)

// Options tunes the radio.
type Options struct {
	AdvertiseInterval time.Duration
}

// BlueZ serves the GATT server over the default BlueZ adapter.
//
// BlueZ keeps CCCD state itself and only forwards notifications to
// subscribed peers, so every connection starts with subscriptions reported
// as enabled for capable characteristics.
type BlueZ struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	payload *adv.Payload
	log     logrus.FieldLogger
	slot    *slot

	mu          sync.Mutex
	advertising bool
	chars       map[gatt.Handle]*bluetooth.Characteristic
	peerValue   map[gatt.Handle][]byte
}

// Open enables the adapter, registers the server's services and configures
// the advertisement. The payload is static for the process lifetime.
//
// tinygo's BlueZ backend has no scan response setter, so only the primary
// advertisement (name and 16-bit services) is broadcast. The 128-bit Foo
// service is found by GATT discovery after connecting.
func Open(server *gatt.Server, payload *adv.Payload, opts Options, log logrus.FieldLogger) (*BlueZ, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &BlueZ{
		adapter:   bluetooth.DefaultAdapter,
		log:       log.WithField("task", "link"),
		chars:     make(map[gatt.Handle]*bluetooth.Characteristic),
		peerValue: make(map[gatt.Handle][]byte),
	}
	b.slot = newSlot(b.notify, subscriptions(server.Services()), b.log)

	if err := b.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()
		if connected {
			b.slot.connected(addr)
		} else {
			b.slot.disconnected(addr)
		}
	})

	for _, svc := range server.Services() {
		if err := b.addService(server, svc); err != nil {
			return nil, err
		}
	}
	if err := server.SetSink(b); err != nil {
		return nil, err
	}

	b.payload = payload
	b.adv = b.adapter.DefaultAdvertisement()
	err := b.adv.Configure(advertisementOptions(payload, opts.AdvertiseInterval))
	if err != nil {
		return nil, fmt.Errorf("configure advertisement: %w", err)
	}
	return b, nil
}

func (b *BlueZ) addService(server *gatt.Server, svc gatt.Service) error {
	cfg := &bluetooth.Service{UUID: toUUID(svc.UUID)}
	for _, c := range svc.Characteristics {
		value, _ := server.Value(c.Handle)
		handle := c.Handle
		char := new(bluetooth.Characteristic)
		b.chars[handle] = char

		cc := bluetooth.CharacteristicConfig{
			Handle: char,
			UUID:   toUUID(c.UUID),
			Value:  value,
			Flags:  flags(c.Properties),
		}
		if c.Properties.Has(gatt.PropWrite) {
			cc.WriteEvent = func(_ bluetooth.Connection, _ int, value []byte) {
				b.mu.Lock()
				b.peerValue[handle] = append([]byte(nil), value...)
				b.mu.Unlock()
				b.slot.write(handle, value)
			}
		}
		cfg.Characteristics = append(cfg.Characteristics, cc)
	}
	if err := b.adapter.AddService(cfg); err != nil {
		return fmt.Errorf("add service %s: %w", svc.UUID, err)
	}
	return nil
}

// Advertise starts advertising and waits for a peer. The payload must
// encode the same as the one given to Open.
func (b *BlueZ) Advertise(ctx context.Context, payload *adv.Payload) (peripheral.Conn, error) {
	if !samePayload(payload, b.payload) {
		return nil, errPayloadChanged
	}
	if err := b.adv.Start(); err != nil {
		return nil, fmt.Errorf("start advertising: %w", err)
	}
	b.mu.Lock()
	b.advertising = true
	b.mu.Unlock()
	defer b.stopAdvertising()

	c, err := b.slot.wait(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *BlueZ) stopAdvertising() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.advertising {
		return
	}
	b.advertising = false
	if err := b.adv.Stop(); err != nil {
		b.log.Warnf("stop advertising: %v", err)
	}
}

// Close stops advertising and ends the live session.
func (b *BlueZ) Close() error {
	b.stopAdvertising()
	b.slot.shutdown()
	return nil
}

// SetValue mirrors a stored value into the attribute table. A value the
// peer just wrote is already there and is not echoed back.
func (b *BlueZ) SetValue(h gatt.Handle, value []byte) error {
	b.mu.Lock()
	char, ok := b.chars[h]
	if echo, written := b.peerValue[h]; written && bytes.Equal(echo, value) {
		delete(b.peerValue, h)
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	if !ok {
		// Not registered yet; the value is picked up by addService.
		return nil
	}
	_, err := char.Write(value)
	return err
}

func (b *BlueZ) notify(h gatt.Handle, value []byte) error {
	b.mu.Lock()
	char, ok := b.chars[h]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown handle %d", h)
	}
	_, err := char.Write(value)
	return err
}

var errPayloadChanged = errors.New("link: advertisement payload differs from the one configured at open")

func samePayload(a, b *adv.Payload) bool {
	if a == nil || b == nil {
		return a == b
	}
	return bytes.Equal(a.AdvData(), b.AdvData()) && bytes.Equal(a.ScanData(), b.ScanData())
}

// advertisementOptions maps the primary advertisement onto tinygo options.
func advertisementOptions(payload *adv.Payload, interval time.Duration) bluetooth.AdvertisementOptions {
	a := payload.Advertisement()
	ids := make([]bluetooth.UUID, 0, len(a.Services16))
	for _, s := range a.Services16 {
		ids = append(ids, bluetooth.New16BitUUID(s))
	}
	return bluetooth.AdvertisementOptions{
		LocalName:    a.Name,
		ServiceUUIDs: ids,
		Interval:     bluetooth.NewDuration(interval),
	}
}

func toUUID(u uuid.UUID) bluetooth.UUID {
	return bluetooth.NewUUID([16]byte(u))
}

func flags(p gatt.Properties) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p.Has(gatt.PropRead) {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p.Has(gatt.PropWrite) {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p.Has(gatt.PropNotify) {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	if p.Has(gatt.PropIndicate) {
		f |= bluetooth.CharacteristicIndicatePermission
	}
	return f
}
