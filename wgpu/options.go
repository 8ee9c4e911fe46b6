package wgpu

import (
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// CaptureHook starts and ends an external frame capture.
type CaptureHook interface {
	StartCapture()
	EndCapture()
}

// Option configures Open.
type Option func(*options)

type options struct {
	backend        gputypes.Backend
	device         hal.Device
	queue          hal.Queue
	name           string
	waitTimeout    time.Duration
	bufferedFrames int
	constantsSize  uint64
	captureHook    CaptureHook
	spirv          bool
}

// Defaults used unless overridden.
const (
	DefaultWaitTimeout    = 5 * time.Second
	DefaultBufferedFrames = 2

	// DefaultConstantsBlockSize is the size of each uniform block that
	// Set32BitShaderConstants values are packed into.
	DefaultConstantsBlockSize = 64 << 10
)

func defaultOptions() options {
	return options{
		backend:        gputypes.BackendVulkan,
		waitTimeout:    DefaultWaitTimeout,
		bufferedFrames: DefaultBufferedFrames,
		constantsSize:  DefaultConstantsBlockSize,
	}
}

// WithBackend selects the hal backend Open creates an instance of. The
// backend package must be linked in; Vulkan is linked by this package.
func WithBackend(b gputypes.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithHalDevice makes Open wrap an existing device and queue instead of
// creating its own. The caller keeps ownership: Close does not destroy
// them.
func WithHalDevice(device hal.Device, queue hal.Queue) Option {
	return func(o *options) {
		o.device = device
		o.queue = queue
	}
}

// WithName sets the adapter name reported by Device.Name for devices
// passed with WithHalDevice.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithWaitTimeout bounds how long Begin waits for the oldest in-flight
// submission when bufferedFrames are already queued.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// WithBufferedFrames sets how many submissions may be in flight before
// Begin blocks. Values below 1 are treated as 1.
func WithBufferedFrames(n int) Option {
	return func(o *options) { o.bufferedFrames = max(n, 1) }
}

// WithConstantsBlockSize sets the size of the uniform blocks shader
// constants are written to. It is rounded up to 256 bytes.
func WithConstantsBlockSize(size uint64) Option {
	return func(o *options) { o.constantsSize = alignUp(max(size, constantsAlignment), constantsAlignment) }
}

// WithCaptureHook installs the hook called by BeginExternalCapture and
// EndExternalCapture.
func WithCaptureHook(h CaptureHook) Option {
	return func(o *options) { o.captureHook = h }
}

// WithSPIRVShaders makes CreateShader compile WGSL to SPIR-V with naga
// before handing it to the hal, for drivers that only accept SPIR-V.
func WithSPIRVShaders(enable bool) Option {
	return func(o *options) { o.spirv = enable }
}
