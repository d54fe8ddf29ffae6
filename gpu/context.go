package gpu

import (
	"fmt"
	"strings"

	"github.com/openfluke/webgpu/wgpu"
	"go.uber.org/zap"
)

// Options controls adapter selection.
type Options struct {
	// PreferVendor is matched case-insensitively against the adapter name
	// and vendor name during enumeration. Empty disables the preference.
	PreferVendor string
}

// Context holds the WebGPU objects a launch needs
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue

	log *zap.Logger
}

// NewContext opens an adapter and device. Adapters are tried in order: the
// first enumerated adapter matching opts.PreferVendor, then high
// performance, low power and finally the platform default.
func NewContext(opts Options, log *zap.Logger) (*Context, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Context{log: log}

	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return nil, fmt.Errorf("failed to create WebGPU instance")
	}

	if opts.PreferVendor != "" {
		c.Adapter = c.findPreferred(strings.ToLower(opts.PreferVendor))
	}

	tryInit := func(opts *wgpu.RequestAdapterOptions) error {
		if c.Adapter != nil {
			return nil
		}
		var err error
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		return err
	}

	var initErr error
	if c.Adapter == nil {
		initErr = tryInit(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreferenceHighPerformance,
		})
	}
	if initErr != nil && c.Adapter == nil {
		log.Debug("high performance adapter failed, falling back", zap.Error(initErr))
		initErr = tryInit(&wgpu.RequestAdapterOptions{
			PowerPreference: wgpu.PowerPreferenceLowPower,
		})
	}
	if initErr != nil && c.Adapter == nil {
		log.Debug("low power adapter failed, trying default", zap.Error(initErr))
		initErr = tryInit(nil)
	}
	if c.Adapter == nil {
		c.Release()
		if initErr == nil {
			initErr = fmt.Errorf("no adapter returned")
		}
		return nil, fmt.Errorf("all adapter attempts failed: %w", initErr)
	}

	info := c.Adapter.GetInfo()
	log.Info("using GPU adapter", zap.String("name", info.Name), zap.String("vendor", info.VendorName))

	var err error
	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		c.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	c.Queue = c.Device.GetQueue()
	if c.Queue == nil {
		c.Release()
		return nil, fmt.Errorf("WebGPU queue not initialized")
	}
	return c, nil
}

func (c *Context) findPreferred(vendor string) *wgpu.Adapter {
	var chosen *wgpu.Adapter
	for _, a := range c.Instance.EnumerateAdapters(nil) {
		info := a.GetInfo()
		c.log.Debug("adapter",
			zap.String("name", info.Name),
			zap.String("vendor", info.VendorName),
			zap.String("device_id", fmt.Sprintf("0x%X", info.DeviceId)),
			zap.String("vendor_id", fmt.Sprintf("0x%X", info.VendorId)),
		)
		if chosen == nil && matchesVendor(info.Name, info.VendorName, vendor) {
			c.log.Debug("selecting preferred adapter", zap.String("name", info.Name))
			chosen = a
			continue
		}
		a.Release()
	}
	return chosen
}

func matchesVendor(name, vendorName, vendor string) bool {
	return strings.Contains(strings.ToLower(name), vendor) ||
		strings.Contains(strings.ToLower(vendorName), vendor)
}

// Release frees the device, adapter and instance. Safe on a partially
// initialized context.
func (c *Context) Release() {
	if c.Queue != nil {
		c.Queue.Release()
		c.Queue = nil
	}
	if c.Device != nil {
		c.Device.Release()
		c.Device = nil
	}
	if c.Adapter != nil {
		c.Adapter.Release()
		c.Adapter = nil
	}
	if c.Instance != nil {
		c.Instance.Release()
		c.Instance = nil
	}
}
