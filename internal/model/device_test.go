package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindSwitch(t *testing.T) {
	device := &Device{
		Switches: SwitchList{
			{ID: "sw1", Label: "first"},
			{ID: "sw2", Label: "second"},
		},
	}

	t.Run("finds by id", func(t *testing.T) {
		sw := device.FindSwitch("sw2")
		require.NotNil(t, sw)
		assert.Equal(t, "second", sw.Label)
	})

	t.Run("empty id falls back to first switch", func(t *testing.T) {
		sw := device.FindSwitch("")
		require.NotNil(t, sw)
		assert.Equal(t, "sw1", sw.ID)
	})

	t.Run("unknown id is nil", func(t *testing.T) {
		assert.Nil(t, device.FindSwitch("sw9"))
	})

	t.Run("empty id on switchless device is nil", func(t *testing.T) {
		assert.Nil(t, (&Device{}).FindSwitch(""))
	})
}

func TestSwitchPayload(t *testing.T) {
	sw := &Switch{GpioPin: 21, GpioDuration: 2100}
	assert.Equal(t, "21-2100", sw.Payload())
}

func TestDeviceCooldown(t *testing.T) {
	device := &Device{Timeout: 90}
	assert.Equal(t, 90*time.Second, device.Cooldown())
}

func TestSwitchListScan(t *testing.T) {
	t.Run("scans jsonb bytes", func(t *testing.T) {
		var list SwitchList
		err := list.Scan([]byte(`[{"id":"sw1","amount":21.5,"gpio_pin":4,"gpio_duration":1000,"lnurl":"","label":"Feed"}]`))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "sw1", list[0].ID)
		assert.Equal(t, 21.5, list[0].Amount)
	})

	t.Run("nil scans to empty list", func(t *testing.T) {
		var list SwitchList
		require.NoError(t, list.Scan(nil))
		assert.Empty(t, list)
	})

	t.Run("nil list values as empty json array", func(t *testing.T) {
		var list SwitchList
		v, err := list.Value()
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(v.([]byte)))
	})
}
