package gauge

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/godbus/dbus/introspect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceMethods(t *testing.T) {
	useRecorder(t)
	r := newGaugeRig(t, 800, false)
	s := &service{battery: r.battery}

	current, max, rated, dErr := s.GetCapacity()
	require.Nil(t, dErr)
	assert.Equal(t, 800.0, current)
	assert.Equal(t, 1000.0, max)
	assert.Equal(t, 1000.0, rated)

	percentage, dErr := s.GetPercentage()
	require.Nil(t, dErr)
	assert.InDelta(t, 80.0, percentage, 1e-9)

	charging, dErr := s.IsCharging()
	require.Nil(t, dErr)
	assert.False(t, charging)

	// No rate has been measured yet.
	tte, dErr := s.GetTimeToEmpty()
	require.Nil(t, dErr)
	assert.Equal(t, -1.0, tte)

	// Two pulses a second apart measure 614.4mA.
	r.clock.advance(time.Second)
	r.board.pulse()
	r.battery.Poll()
	tte, dErr = s.GetTimeToEmpty()
	require.Nil(t, dErr)
	assert.InDelta(t, r.battery.CurrentCapacity()/r.battery.ChangeCapacity()*3600, tte, 1e-6)

	ttf, dErr := s.GetTimeToFull()
	require.Nil(t, dErr)
	assert.Equal(t, -1.0, ttf)
}

func TestServiceStatusJSON(t *testing.T) {
	useRecorder(t)
	r := newGaugeRig(t, 250, true)
	s := &service{battery: r.battery}

	data, dErr := s.GetStatus()
	require.Nil(t, dErr)

	var status lithium.Status
	require.NoError(t, json.Unmarshal([]byte(data), &status))
	assert.Equal(t, "charging", status.State)
	assert.Equal(t, 250.0, status.CurrentCapacity)
	assert.InDelta(t, 25.0, status.Percentage, 1e-9)
}

func TestIntrospectionListsMethods(t *testing.T) {
	var methods []string
	for _, m := range introspect.Methods(&service{}) {
		methods = append(methods, m.Name)
	}
	assert.ElementsMatch(t, []string{
		"GetCapacity", "GetPercentage", "GetStatus", "GetTimeToEmpty", "GetTimeToFull", "IsCharging",
	}, methods)
	assert.Contains(t, string(genIntrospectable(&service{})), `<signal name="Capacity">`)
}
