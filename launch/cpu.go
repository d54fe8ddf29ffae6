package launch

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LaneFunc is the per-lane body run by CPUDevice. A non-nil error fails the
// whole launch.
type LaneFunc func(r LaneRecord) error

// CPUDevice runs every lane of a launch on its own goroutine. It is the
// host-side stand-in for a GPU and has the same deferred-error contract.
type CPUDevice struct {
	// Kernel runs inside each lane before the lane records itself. Nil means
	// the lane only records its index.
	Kernel LaneFunc

	log     *zap.Logger
	mu      sync.Mutex
	group   *errgroup.Group
	records []LaneRecord
	err     error
}

// NewCPUDevice returns a CPU device that logs through log (nil for no logging).
func NewCPUDevice(log *zap.Logger) *CPUDevice {
	if log == nil {
		log = zap.NewNop()
	}
	return &CPUDevice{log: log}
}

func (d *CPUDevice) Name() string { return "cpu" }

// Launch starts one goroutine per lane and returns immediately.
func (d *CPUDevice) Launch(g Geometry) {
	if err := g.Validate(); err != nil {
		d.setErr(err)
		return
	}
	if d.group == nil {
		d.group = new(errgroup.Group)
	}
	d.log.Debug("cpu launch", zap.Int("groups", g.Groups), zap.Int("lanes", g.Lanes))

	for group := 0; group < g.Groups; group++ {
		for lane := 0; lane < g.Lanes; lane++ {
			rec := LaneRecord{Group: group, Lane: lane}
			d.group.Go(func() error {
				if d.Kernel != nil {
					if err := d.Kernel(rec); err != nil {
						return Errorf(StatusLaunchFailure, "group %d lane %d: %v", rec.Group, rec.Lane, err)
					}
				}
				d.mu.Lock()
				d.records = append(d.records, rec)
				d.mu.Unlock()
				return nil
			})
		}
	}
}

// Synchronize waits for every lane started since the last call.
func (d *CPUDevice) Synchronize() ([]LaneRecord, error) {
	var err error
	if d.group != nil {
		err = d.group.Wait()
		d.group = nil
	}

	d.mu.Lock()
	records := d.records
	d.records = nil
	if d.err != nil {
		err = d.err
		d.err = nil
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return records, nil
}

func (d *CPUDevice) Close() error { return nil }

func (d *CPUDevice) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err == nil {
		d.err = err
	}
}
