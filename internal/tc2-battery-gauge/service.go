package gauge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TheCacophonyProject/tc2-battery-gauge/lithium"
	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.cacophony.BatteryGauge"
	dbusPath = "/org/cacophony/BatteryGauge"
)

type service struct {
	battery *lithium.Battery
}

func startService(battery *lithium.Battery) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{battery: battery}
	if err := conn.Export(s, dbusPath, dbusName); err != nil {
		return err
	}
	return conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
			Signals: []introspect.Signal{{
				Name: "Capacity",
				Args: []introspect.Arg{
					{Name: "mAh", Type: "d"},
					{Name: "percentage", Type: "d"},
				},
			}},
		}},
	}
	return introspect.NewIntrospectable(node)
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + "." + name,
		Body: []interface{}{err.Error()},
	}
}

// GetStatus returns a JSON snapshot of the battery.
func (s *service) GetStatus() (string, *dbus.Error) {
	data, err := json.Marshal(s.battery.Status())
	if err != nil {
		return "", makeDbusError("GetStatus", err)
	}
	return string(data), nil
}

func (s *service) GetPercentage() (float64, *dbus.Error) {
	return s.battery.Percentage(), nil
}

// GetCapacity returns the current, maximum and rated capacity in mAh.
func (s *service) GetCapacity() (float64, float64, float64, *dbus.Error) {
	return s.battery.CurrentCapacity(), s.battery.MaximumCapacity(), s.battery.RatedCapacity(), nil
}

func (s *service) IsCharging() (bool, *dbus.Error) {
	return s.battery.IsCharging(), nil
}

// GetTimeToEmpty returns seconds until empty at the last measured rate, or -1.
func (s *service) GetTimeToEmpty() (float64, *dbus.Error) {
	return knownOrNegative(s.battery.TimeToEmptySeconds()), nil
}

// GetTimeToFull returns seconds until full at the last measured rate, or -1.
func (s *service) GetTimeToFull() (float64, *dbus.Error) {
	return knownOrNegative(s.battery.TimeToFullSeconds()), nil
}

func knownOrNegative(v float64) float64 {
	if v == lithium.Unknown {
		return -1
	}
	return v
}

func sendCapacitySignal(mAh, percentage float64) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	return conn.Emit(dbusPath, dbusName+".Capacity", mAh, percentage)
}

// getStatus asks the running service for its status.
func getStatus() (lithium.Status, error) {
	var status lithium.Status
	conn, err := dbus.SystemBus()
	if err != nil {
		return status, err
	}
	var data string
	obj := conn.Object(dbusName, dbusPath)
	if err := obj.Call(dbusName+".GetStatus", 0).Store(&data); err != nil {
		return status, fmt.Errorf("failed to get status from %s: %w", dbusName, err)
	}
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return status, err
	}
	return status, nil
}
