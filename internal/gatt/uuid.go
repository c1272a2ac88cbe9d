package gatt

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth base UUID that 16-bit identifiers expand into.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// UUID16 expands a 16-bit SIG identifier into a full UUID.
func UUID16(v uint16) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint16(u[2:4], v)
	return u
}

// Short returns the 16-bit form of u if it is derived from the base UUID.
func Short(u uuid.UUID) (uint16, bool) {
	base := u
	base[2], base[3] = 0, 0
	if base != baseUUID {
		return 0, false
	}
	return binary.BigEndian.Uint16(u[2:4]), true
}

// Identifiers of the declared services.
var (
	BatteryServiceUUID = UUID16(0x180F)
	BatteryLevelUUID   = UUID16(0x2A19)

	FooServiceUUID = uuid.MustParse("9e7312e0-2354-11eb-9f10-fbc30a62cf38")
	FooUUID        = uuid.MustParse("9e7312e0-2354-11eb-9f10-fbc30a63cf38")
)
