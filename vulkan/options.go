package vulkan

import "time"

// CaptureHook starts and ends an external frame capture, typically a
// RenderDoc or Nsight capture of the frames between the two calls.
type CaptureHook interface {
	StartCapture()
	EndCapture()
}

// Option configures a Device.
type Option func(*options)

type options struct {
	forceBinding    bool
	poolMaxSets     uint32
	poolSizes       []PoolSize
	bufferedFrames  int
	nullDescriptors bool
	captureHook     CaptureHook
	fenceTimeout    time.Duration
}

// Default descriptor pool dimensions. Every pool is created with the same
// sizes.
const (
	DefaultPoolMaxSets    = 256
	DefaultBufferedFrames = 2
	DefaultFenceTimeout   = 5 * time.Second
)

// DefaultPoolSizes returns the per-pool descriptor counts used unless
// WithDescriptorPoolSizes overrides them.
func DefaultPoolSizes() []PoolSize {
	return []PoolSize{
		{Type: DescriptorTypeUniformBuffer, Count: 1024},
		{Type: DescriptorTypeSampledImage, Count: 1024},
		{Type: DescriptorTypeStorageImage, Count: 256},
		{Type: DescriptorTypeStorageBuffer, Count: 512},
		{Type: DescriptorTypeSampler, Count: 512},
	}
}

func defaultOptions() options {
	return options{
		poolMaxSets:     DefaultPoolMaxSets,
		poolSizes:       DefaultPoolSizes(),
		bufferedFrames:  DefaultBufferedFrames,
		nullDescriptors: true,
		fenceTimeout:    DefaultFenceTimeout,
	}
}

// WithForceBinding makes the context issue every binding call before every
// draw and dispatch, ignoring cached state. Useful when hunting state
// tracking bugs.
func WithForceBinding(force bool) Option {
	return func(o *options) { o.forceBinding = force }
}

// WithDescriptorPoolSizes sets the capacity of each descriptor pool.
func WithDescriptorPoolSizes(maxSets uint32, sizes []PoolSize) Option {
	return func(o *options) {
		o.poolMaxSets = maxSets
		o.poolSizes = append([]PoolSize(nil), sizes...)
	}
}

// WithBufferedFrames sets how many command buffers the context cycles
// through. Values below 1 are treated as 1.
func WithBufferedFrames(n int) Option {
	return func(o *options) { o.bufferedFrames = max(n, 1) }
}

// WithNullDescriptors controls whether unset descriptor slots are written
// as null descriptors when the driver supports it. When disabled, or
// unsupported, a dummy buffer, image view or sampler is bound instead.
func WithNullDescriptors(enable bool) Option {
	return func(o *options) { o.nullDescriptors = enable }
}

// WithCaptureHook installs the hook called by BeginExternalCapture and
// EndExternalCapture.
func WithCaptureHook(h CaptureHook) Option {
	return func(o *options) { o.captureHook = h }
}

// WithFenceTimeout bounds how long the context waits for a frame fence.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) { o.fenceTimeout = d }
}
