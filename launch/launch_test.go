package launch

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGeometryValidate(t *testing.T) {
	cases := []struct {
		name string
		g    Geometry
		ok   bool
	}{
		{"single group of eight", Geometry{Groups: 1, Lanes: 8}, true},
		{"max lanes", Geometry{Groups: 2, Lanes: MaxLanesPerGroup}, true},
		{"zero lanes", Geometry{Groups: 1, Lanes: 0}, false},
		{"zero groups", Geometry{Groups: 0, Lanes: 8}, false},
		{"too many lanes", Geometry{Groups: 1, Lanes: MaxLanesPerGroup + 1}, false},
		{"too many groups", Geometry{Groups: MaxGroups + 1, Lanes: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.g.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, StatusInvalidConfiguration, StatusOf(err))
		})
	}
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusSuccess, StatusOf(nil))
	assert.Equal(t, StatusLaunchFailure, StatusOf(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", Errorf(StatusNoDevice, "adapter missing"))
	assert.Equal(t, StatusNoDevice, StatusOf(wrapped))
	assert.Equal(t, "no compute-capable device is available: adapter missing", errors.Unwrap(wrapped).Error())
	assert.Equal(t, "unknown status 99", Status(99).String())
}

func TestCPUDeviceRecordsEveryLane(t *testing.T) {
	dev := NewCPUDevice(nil)
	g := Geometry{Groups: 1, Lanes: 8}

	dev.Launch(g)
	records, err := dev.Synchronize()
	require.NoError(t, err)
	require.Len(t, records, 8)

	lanes := make([]int, 0, len(records))
	for _, r := range records {
		assert.Equal(t, 0, r.Group)
		lanes = append(lanes, r.Lane)
	}
	sort.Ints(lanes)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, lanes)

	// A second synchronize with nothing launched is empty.
	records, err = dev.Synchronize()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCPUDeviceDefersGeometryError(t *testing.T) {
	dev := NewCPUDevice(nil)
	dev.Launch(Geometry{Groups: 1, Lanes: 0})

	_, err := dev.Synchronize()
	require.Error(t, err)
	assert.Equal(t, StatusInvalidConfiguration, StatusOf(err))

	// The error is reported once.
	_, err = dev.Synchronize()
	assert.NoError(t, err)
}

func TestCPUDeviceLaneFailure(t *testing.T) {
	dev := NewCPUDevice(nil)
	dev.Kernel = func(r LaneRecord) error {
		if r.Lane == 3 {
			return errors.New("trap")
		}
		return nil
	}
	dev.Launch(Geometry{Groups: 1, Lanes: 8})

	_, err := dev.Synchronize()
	require.Error(t, err)
	assert.Equal(t, StatusLaunchFailure, StatusOf(err))
	assert.Contains(t, err.Error(), "lane 3")
}

func TestRunPrintsOneLinePerLane(t *testing.T) {
	var out bytes.Buffer
	err := Run(NewCPUDevice(nil), Geometry{Groups: 1, Lanes: 8}, &out, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 8)

	seen := map[int]bool{}
	for _, line := range lines {
		var lane int
		_, err := fmt.Sscanf(line, "Hello from lane %d", &lane)
		require.NoError(t, err, line)
		assert.False(t, seen[lane], "lane %d printed twice", lane)
		seen[lane] = true
	}
	for lane := 0; lane < 8; lane++ {
		assert.True(t, seen[lane], "lane %d missing", lane)
	}
}

func TestRunMultipleGroups(t *testing.T) {
	var out bytes.Buffer
	err := Run(NewCPUDevice(nil), Geometry{Groups: 2, Lanes: 4}, &out, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, strings.Count(out.String(), "\n"))
	assert.Contains(t, out.String(), "Hello from group 1 lane 3\n")
}

func TestRunUnavailableDevice(t *testing.T) {
	var out bytes.Buffer
	err := Run(&UnavailableDevice{Reason: errors.New("no adapters")}, Geometry{Groups: 1, Lanes: 8}, &out, nil)
	require.Error(t, err)
	assert.Equal(t, StatusNoDevice, StatusOf(err))
	assert.Contains(t, err.Error(), "no adapters")
	assert.Empty(t, out.String())
}

// stubDevice returns fixed records from Synchronize.
type stubDevice struct {
	records []LaneRecord
}

func (d *stubDevice) Name() string                       { return "stub" }
func (d *stubDevice) Launch(Geometry)                    {}
func (d *stubDevice) Synchronize() ([]LaneRecord, error) { return d.records, nil }
func (d *stubDevice) Close() error                       { return nil }

func TestRunRejectsBadRecords(t *testing.T) {
	g := Geometry{Groups: 1, Lanes: 2}
	cases := map[string][]LaneRecord{
		"missing":   {{Lane: 0}},
		"duplicate": {{Lane: 1}, {Lane: 1}},
		"range":     {{Lane: 0}, {Lane: 2}},
		"group":     {{Lane: 0}, {Group: 1, Lane: 1}},
	}
	for name, records := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			err := Run(&stubDevice{records: records}, g, &out, nil)
			assert.Equal(t, StatusInvalidRecord, StatusOf(err))
			assert.Empty(t, out.String())
		})
	}
}
