package adv

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fooService = uuid.MustParse("9e7312e0-2354-11eb-9f10-fbc30a62cf38")

func buttonPayload(t *testing.T) *Payload {
	t.Helper()
	p, err := Build(
		Advertisement{
			Flags:      FlagGeneralDiscovery | FlagLEOnly,
			Services16: []uint16{0x180F},
			Name:       "BLE-Button",
		},
		Advertisement{
			Services128: []uuid.UUID{fooService},
		},
	)
	require.NoError(t, err)
	return p
}

func TestGoldenPayloads(t *testing.T) {
	p := buttonPayload(t)
	g := goldie.New(t)

	g.Assert(t, "adv_data", []byte(hex.EncodeToString(p.AdvData())))
	g.Assert(t, "scan_data", []byte(hex.EncodeToString(p.ScanData())))
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	data, err := Advertisement{}.Encode()
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = Advertisement{Name: "x"}.Encode()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0x09, 'x'}, data)
}

func TestEncodeRejectsOversize(t *testing.T) {
	_, err := Advertisement{
		Flags: FlagGeneralDiscovery,
		Name:  strings.Repeat("n", 30),
	}.Encode()
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Build(Advertisement{}, Advertisement{
		Services128: []uuid.UUID{fooService, fooService},
	})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPayloadIsImmutable(t *testing.T) {
	p := buttonPayload(t)

	data := p.AdvData()
	data[0] = 0xFF
	assert.Equal(t, byte(0x02), p.AdvData()[0])

	a := p.Advertisement()
	a.Services16[0] = 0
	assert.Equal(t, uint16(0x180F), p.Advertisement().Services16[0])
}

func TestPayloadServices(t *testing.T) {
	s16, s128 := buttonPayload(t).Services()
	assert.Equal(t, []uint16{0x180F}, s16)
	assert.Equal(t, []uuid.UUID{fooService}, s128)
}
