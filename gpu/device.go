package gpu

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/openfluke/gpuhello/launch"
)

// Device runs lane kernels on a WebGPU device. Launch encodes and submits
// the dispatch right away; Synchronize waits for the queue to drain and
// downloads what every pending launch recorded.
type Device struct {
	ctx     *Context
	log     *zap.Logger
	pending []*LaneKernel
	err     error
	seq     int
}

// NewDevice wraps an open context. The device owns ctx from then on.
func NewDevice(ctx *Context, log *zap.Logger) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	return &Device{ctx: ctx, log: log}
}

// Open creates a context with opts and wraps it in a Device.
func Open(opts Options, log *zap.Logger) (*Device, error) {
	ctx, err := NewContext(opts, log)
	if err != nil {
		return nil, err
	}
	return NewDevice(ctx, log), nil
}

func (d *Device) Name() string {
	if d.ctx.Adapter == nil {
		return "gpu"
	}
	return "gpu:" + d.ctx.Adapter.GetInfo().Name
}

func (d *Device) Launch(g launch.Geometry) {
	if d.err != nil {
		return
	}
	if err := g.Validate(); err != nil {
		d.err = err
		return
	}

	d.seq++
	label := fmt.Sprintf("LaneKernel%d", d.seq)
	k := &LaneKernel{Geometry: g}
	if err := d.submit(k, label); err != nil {
		k.Cleanup()
		d.err = launch.Errorf(launch.StatusLaunchFailure, "%s: %v", label, err)
		return
	}
	d.log.Debug("kernel submitted", zap.String("label", label), zap.Int("groups", g.Groups), zap.Int("lanes", g.Lanes))
	d.pending = append(d.pending, k)
}

func (d *Device) submit(k *LaneKernel, label string) error {
	if err := k.AllocateBuffers(d.ctx, label); err != nil {
		return fmt.Errorf("allocate buffers: %w", err)
	}
	if err := k.Compile(d.ctx, label); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	if err := k.CreateBindGroup(d.ctx, label); err != nil {
		return fmt.Errorf("bind group: %w", err)
	}

	enc, err := d.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	k.Dispatch(pass)
	pass.End()
	pass.Release()

	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	d.ctx.Queue.Submit(cmd)
	cmd.Release()
	return nil
}

func (d *Device) Synchronize() ([]launch.LaneRecord, error) {
	Wait(d.ctx)

	pending := d.pending
	d.pending = nil
	defer func() {
		for _, k := range pending {
			k.Cleanup()
		}
	}()

	if d.err != nil {
		err := d.err
		d.err = nil
		return nil, err
	}

	var records []launch.LaneRecord
	for _, k := range pending {
		cursor, raw, err := k.DownloadRecords(d.ctx)
		if err != nil {
			return nil, launch.Errorf(launch.StatusReadbackFailure, "%v", err)
		}
		recs, err := DecodeRecords(cursor, raw, k.Geometry)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

func (d *Device) Close() error {
	for _, k := range d.pending {
		k.Cleanup()
	}
	d.pending = nil
	d.ctx.Release()
	return nil
}
