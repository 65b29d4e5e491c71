package redfish

import (
	"testing"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thermalDoc = `{
  "@odata.id": "/redfish/v1/Chassis/1/Thermal",
  "Temperatures": [
    {"Name": "CPU1 Temp", "ReadingCelsius": 45, "Status": {"Health": "OK", "State": "Enabled"}},
    {"Name": "Inlet", "ReadingCelsius": "21.5", "Status": {"State": "Enabled"}}
  ],
  "Fans": [],
  "Oem": {"Dell": {"PrimaryStatus": "OK"}},
  "Links": {"Chassis": {"@odata.id": "/redfish/v1/Chassis/1"}},
  "Members": [{"@odata.id": "/a"}, {"bogus": 1}, {"@odata.id": "/b"}],
  "Nothing": null
}`

func TestPayloadAccessors(t *testing.T) {
	p, err := Decode("/redfish/v1/Chassis/1/Thermal", []byte(thermalDoc))
	require.NoError(t, err)

	assert.Equal(t, "/redfish/v1/Chassis/1/Thermal", p.Path())

	temps := p.Get("Temperatures").Array()
	require.Len(t, temps, 2)
	assert.Equal(t, "CPU1 Temp", temps[0].Get("Name").String())

	v, ok := temps[0].Get("ReadingCelsius").Float()
	assert.True(t, ok)
	assert.InDelta(t, 45.0, v, 0.001)

	v, ok = temps[1].Get("ReadingCelsius").Float()
	assert.True(t, ok)
	assert.InDelta(t, 21.5, v, 0.001)

	assert.False(t, temps[1].Get("Status", "Health").Exists())
	assert.Equal(t, "OK", p.Get("Temperatures").Index(0).Get("Status", "Health").String())
	assert.False(t, p.Get("Temperatures").Index(9).Exists())

	assert.True(t, p.Get("Fans").IsArray())
	assert.Empty(t, p.Get("Fans").Array())
	assert.True(t, p.Get("Nothing").IsNull())
	assert.True(t, p.Get("Oem").IsObject())
	assert.Equal(t, []string{"Dell"}, p.Get("Oem").Keys())
	assert.False(t, p.Get("oem").Exists())
	assert.True(t, p.Root().GetFold("oem").Exists())

	assert.Equal(t, "/redfish/v1/Chassis/1", p.Get("Links").Link("Chassis"))
	assert.Equal(t, []string{"/a", "/b"}, p.Root().Members())
}

func TestNodeNeverPanics(t *testing.T) {
	var n Node

	assert.NotPanics(t, func() {
		assert.False(t, n.Exists())
		assert.Equal(t, "", n.String())
		assert.Nil(t, n.Array())
		assert.Nil(t, n.Keys())
		assert.Empty(t, n.Members())
		_, ok := n.Get("a", "b").Index(3).Float()
		assert.False(t, ok)
	})

	p, err := Decode("/x", []byte(`"scalar"`))
	require.NoError(t, err)
	assert.False(t, p.Get("Members").Exists())
	assert.Equal(t, "scalar", p.Root().String())

	var nilPayload *Payload
	assert.False(t, nilPayload.Get("x").Exists())
}

func TestDecodeInvalidJSON(t *testing.T) {
	_, err := Decode("/bad", []byte(`{"unterminated"`))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrDecodeFailed))
}
