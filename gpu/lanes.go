package gpu

import (
	"fmt"

	"github.com/openfluke/webgpu/wgpu"

	"github.com/openfluke/gpuhello/launch"
)

// EmptyRecord marks a record slot no lane has written.
const EmptyRecord uint32 = 0xFFFFFFFF

// LaneKernel holds GPU resources for one launch of the lane-report kernel.
// Every invocation claims the next record slot with an atomic cursor and
// stores its flat lane index there, so slot order is completion order.
type LaneKernel struct {
	Geometry launch.Geometry

	pipeline  *wgpu.ComputePipeline
	bindGroup *wgpu.BindGroup

	CursorBuffer  *wgpu.Buffer
	RecordsBuffer *wgpu.Buffer
}

func (k *LaneKernel) AllocateBuffers(ctx *Context, labelPrefix string) error {
	var err error
	k.CursorBuffer, err = NewUint32Buffer(ctx, labelPrefix+"_Cursor", []uint32{0})
	if err != nil {
		return err
	}

	empty := make([]uint32, k.Geometry.Total())
	for i := range empty {
		empty[i] = EmptyRecord
	}
	k.RecordsBuffer, err = NewUint32Buffer(ctx, labelPrefix+"_Records", empty)
	return err
}

func (k *LaneKernel) GenerateShader() string {
	return fmt.Sprintf(`
		@group(0) @binding(0) var<storage, read_write> cursor : atomic<u32>;
		@group(0) @binding(1) var<storage, read_write> records : array<u32>;

		const LANES: u32 = %du;

		@compute @workgroup_size(%d)
		fn main(
			@builtin(workgroup_id) wg_id: vec3<u32>,
			@builtin(local_invocation_id) local_id: vec3<u32>
		) {
			let slot = atomicAdd(&cursor, 1u);
			records[slot] = wg_id.x * LANES + local_id.x;
		}
	`, k.Geometry.Lanes, k.Geometry.Lanes)
}

func (k *LaneKernel) Compile(ctx *Context, labelPrefix string) error {
	module, err := ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          labelPrefix + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: k.GenerateShader()},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	k.pipeline, err = ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   labelPrefix + "_Pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	return err
}

func (k *LaneKernel) CreateBindGroup(ctx *Context, labelPrefix string) error {
	var err error
	k.bindGroup, err = ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  labelPrefix + "_Bind",
		Layout: k.pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: k.CursorBuffer, Size: k.CursorBuffer.GetSize()},
			{Binding: 1, Buffer: k.RecordsBuffer, Size: k.RecordsBuffer.GetSize()},
		},
	})
	return err
}

func (k *LaneKernel) Dispatch(pass *wgpu.ComputePassEncoder) {
	pass.SetPipeline(k.pipeline)
	pass.SetBindGroup(0, k.bindGroup, nil)
	pass.DispatchWorkgroups(uint32(k.Geometry.Groups), 1, 1)
}

// DownloadRecords reads the cursor and the record slots back from the
// device. Call only after the launch has completed.
func (k *LaneKernel) DownloadRecords(ctx *Context) (uint32, []uint32, error) {
	cursor, err := ReadUint32Buffer(ctx, k.CursorBuffer, 1)
	if err != nil {
		return 0, nil, err
	}
	raw, err := ReadUint32Buffer(ctx, k.RecordsBuffer, k.Geometry.Total())
	if err != nil {
		return 0, nil, err
	}
	return cursor[0], raw, nil
}

// DecodeRecords turns the downloaded cursor and slots into lane records in
// slot order. The cursor must equal the lane count and every slot must hold
// an index inside g.
func DecodeRecords(cursor uint32, raw []uint32, g launch.Geometry) ([]launch.LaneRecord, error) {
	total := g.Total()
	if int(cursor) != total {
		return nil, launch.Errorf(launch.StatusInvalidRecord, "%d lanes ran, want %d", cursor, total)
	}
	if len(raw) != total {
		return nil, launch.Errorf(launch.StatusInvalidRecord, "%d record slots, want %d", len(raw), total)
	}
	records := make([]launch.LaneRecord, 0, total)
	for slot, v := range raw {
		if v == EmptyRecord {
			return nil, launch.Errorf(launch.StatusInvalidRecord, "slot %d was never written", slot)
		}
		if int(v) >= total {
			return nil, launch.Errorf(launch.StatusInvalidRecord, "slot %d holds lane %d outside launch", slot, v)
		}
		records = append(records, launch.LaneRecord{Group: int(v) / g.Lanes, Lane: int(v) % g.Lanes})
	}
	return records, nil
}

func (k *LaneKernel) Cleanup() {
	if k.CursorBuffer != nil {
		k.CursorBuffer.Destroy()
	}
	if k.RecordsBuffer != nil {
		k.RecordsBuffer.Destroy()
	}
	if k.pipeline != nil {
		k.pipeline.Release()
	}
	if k.bindGroup != nil {
		k.bindGroup.Release()
	}
}
