// Package launch runs the launch, synchronize and status-check sequence
// against a compute device.
package launch

import (
	"fmt"
)

// LaneRecord is what one lane reports back to the host.
type LaneRecord struct {
	Group int
	Lane  int
}

// Format returns the line printed for the record. The group is only shown
// when the launch has more than one group.
func (r LaneRecord) Format(g Geometry) string {
	if g.Groups > 1 {
		return fmt.Sprintf("Hello from group %d lane %d", r.Group, r.Lane)
	}
	return fmt.Sprintf("Hello from lane %d", r.Lane)
}

// Device is a compute device that accepts a kernel launch.
//
// Launch only enqueues work and never fails on its own; any problem with
// the launch is reported by the next Synchronize. Synchronize blocks until
// every submitted lane has finished and returns the records in the order
// the device produced them.
type Device interface {
	Name() string
	Launch(g Geometry)
	Synchronize() ([]LaneRecord, error)
	Close() error
}

// UnavailableDevice stands in for a device that could not be opened. Every
// Synchronize reports StatusNoDevice with the reason it was unavailable.
type UnavailableDevice struct {
	Reason error
}

func (d *UnavailableDevice) Name() string { return "unavailable" }

func (d *UnavailableDevice) Launch(Geometry) {}

func (d *UnavailableDevice) Synchronize() ([]LaneRecord, error) {
	if d.Reason == nil {
		return nil, &Error{Status: StatusNoDevice}
	}
	return nil, &Error{Status: StatusNoDevice, Detail: d.Reason.Error()}
}

func (d *UnavailableDevice) Close() error { return nil }
