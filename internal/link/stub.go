//go:build !linux

package link

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/ble-button/internal/adv"
	"github.com/sweeney/ble-button/internal/gatt"
	"github.com/sweeney/ble-button/internal/peripheral"
)

var errUnsupported = errors.New("link: not supported on this platform (requires Linux with BlueZ)")

// Options tunes the radio.
type Options struct {
	AdvertiseInterval time.Duration
}

// BlueZ is not available on non-Linux platforms.
type BlueZ struct{}

// Open returns an error on non-Linux platforms.
func Open(server *gatt.Server, payload *adv.Payload, opts Options, log logrus.FieldLogger) (*BlueZ, error) {
	return nil, errUnsupported
}

// Advertise is not implemented on non-Linux platforms.
func (b *BlueZ) Advertise(ctx context.Context, payload *adv.Payload) (peripheral.Conn, error) {
	return nil, errUnsupported
}

// SetValue is not implemented on non-Linux platforms.
func (b *BlueZ) SetValue(h gatt.Handle, value []byte) error {
	return errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (b *BlueZ) Close() error {
	return nil
}
