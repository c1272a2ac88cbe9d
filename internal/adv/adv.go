// Package adv builds the static advertising and scan response payloads.
//
// Content is declared as an Advertisement and encoded once into legacy AD
// structures; the resulting Payload is immutable for the process lifetime.
package adv

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxPayload is the legacy advertising data limit in bytes.
const MaxPayload = 31

// Flag is a bit in the AD flags field.
type Flag byte

const (
	FlagLimitedDiscovery Flag = 0x01
	FlagGeneralDiscovery Flag = 0x02
	FlagLEOnly           Flag = 0x04 // BR/EDR not supported
)

// AD structure types (Core Supplement, Part A).
const (
	adFlags             = 0x01
	adComplete16        = 0x03
	adComplete128       = 0x07
	adCompleteLocalName = 0x09
)

// ErrTooLarge is returned when encoded content exceeds MaxPayload.
var ErrTooLarge = errors.New("adv: payload exceeds 31 bytes")

// Advertisement declares the content of one advertising slot.
// Zero-valued fields are omitted.
type Advertisement struct {
	Flags       Flag
	Services16  []uint16
	Services128 []uuid.UUID
	Name        string
}

// Encode returns the AD structures for a.
func (a Advertisement) Encode() ([]byte, error) {
	var out []byte

	if a.Flags != 0 {
		out = append(out, 2, adFlags, byte(a.Flags))
	}

	if len(a.Services16) > 0 {
		out = append(out, byte(1+2*len(a.Services16)), adComplete16)
		for _, s := range a.Services16 {
			out = append(out, byte(s), byte(s>>8))
		}
	}

	if len(a.Services128) > 0 {
		out = append(out, byte(1+16*len(a.Services128)), adComplete128)
		for _, u := range a.Services128 {
			// On air 128-bit identifiers are little-endian.
			for i := 15; i >= 0; i-- {
				out = append(out, u[i])
			}
		}
	}

	if a.Name != "" {
		out = append(out, byte(1+len(a.Name)), adCompleteLocalName)
		out = append(out, a.Name...)
	}

	if len(out) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(out))
	}
	return out, nil
}

// Payload is the encoded advertising and scan response content.
type Payload struct {
	adv      Advertisement
	scan     Advertisement
	advData  []byte
	scanData []byte
}

// Build encodes both slots.
func Build(advertisement, scanResponse Advertisement) (*Payload, error) {
	advData, err := advertisement.Encode()
	if err != nil {
		return nil, fmt.Errorf("advertising data: %w", err)
	}
	scanData, err := scanResponse.Encode()
	if err != nil {
		return nil, fmt.Errorf("scan response: %w", err)
	}
	return &Payload{
		adv:      clone(advertisement),
		scan:     clone(scanResponse),
		advData:  advData,
		scanData: scanData,
	}, nil
}

// Advertisement returns the declared advertising content.
func (p *Payload) Advertisement() Advertisement { return clone(p.adv) }

// ScanResponse returns the declared scan response content.
func (p *Payload) ScanResponse() Advertisement { return clone(p.scan) }

// AdvData returns a copy of the encoded advertising data.
func (p *Payload) AdvData() []byte { return append([]byte(nil), p.advData...) }

// ScanData returns a copy of the encoded scan response data.
func (p *Payload) ScanData() []byte { return append([]byte(nil), p.scanData...) }

// Services returns every advertised service identifier, 16-bit ones first.
func (p *Payload) Services() ([]uint16, []uuid.UUID) {
	s16 := append(append([]uint16(nil), p.adv.Services16...), p.scan.Services16...)
	s128 := append(append([]uuid.UUID(nil), p.adv.Services128...), p.scan.Services128...)
	return s16, s128
}

func clone(a Advertisement) Advertisement {
	a.Services16 = append([]uint16(nil), a.Services16...)
	a.Services128 = append([]uuid.UUID(nil), a.Services128...)
	return a
}
