package vkdriver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

const (
	validationLayer  = "VK_LAYER_KHRONOS_validation"
	robustness2Ext   = "VK_EXT_robustness2"
	robustness2SType = vk.StructureType(1000286000)
)

// robustness2Features mirrors VkPhysicalDeviceRobustness2FeaturesEXT.
type robustness2Features struct {
	sType               vk.StructureType
	pNext               unsafe.Pointer
	robustBufferAccess2 vk.Bool32
	robustImageAccess2  vk.Bool32
	nullDescriptor      vk.Bool32
}

type buffer struct {
	buf    vk.Buffer
	mem    vk.DeviceMemory
	size   uint64
	mapped unsafe.Pointer // nil unless host-visible
}

type image struct {
	img vk.Image
	mem vk.DeviceMemory
}

// Driver implements vulkan.Driver over the Vulkan loader. It owns a
// headless instance, one logical device and one graphics+compute queue.
type Driver struct {
	instance vk.Instance
	gpu      vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	family   uint32
	memory   vk.PhysicalDeviceMemoryProperties
	props    vulkan.Properties

	// The queue and the command pool are externally synchronized objects.
	queueMu sync.Mutex
	poolMu  sync.Mutex
	pool    vk.CommandPool

	buffers      *table[*buffer]
	images       *table[*image]
	views        *table[vk.ImageView]
	samplers     *table[vk.Sampler]
	modules      *table[vk.ShaderModule]
	setLayouts   *table[vk.DescriptorSetLayout]
	pipeLayouts  *table[vk.PipelineLayout]
	pipelines    *table[vk.Pipeline]
	renderPasses *table[vk.RenderPass]
	framebuffers *table[vk.Framebuffer]
	descPools    *table[*poolSets]
	descSets     *table[vk.DescriptorSet]
	queryPools   *table[vk.QueryPool]
	cmdBuffers   *table[vk.CommandBuffer]
	fences       *table[vk.Fence]
}

var _ vulkan.Driver = (*Driver)(nil)

// initOnce guards the process-wide loader initialization.
var (
	initOnce sync.Once
	initErr  error
)

func loadVulkan() error {
	initOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			initErr = fmt.Errorf("vkdriver: load vulkan loader: %w", err)
			return
		}
		if err := vk.Init(); err != nil {
			initErr = fmt.Errorf("vkdriver: init vulkan: %w", err)
		}
	})
	return initErr
}

// NewDriver loads the Vulkan loader and creates a device on the first
// physical device with a graphics and compute queue.
func NewDriver(opts ...Option) (*Driver, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := loadVulkan(); err != nil {
		return nil, err
	}

	d := &Driver{
		buffers:      newTable[*buffer](),
		images:       newTable[*image](),
		views:        newTable[vk.ImageView](),
		samplers:     newTable[vk.Sampler](),
		modules:      newTable[vk.ShaderModule](),
		setLayouts:   newTable[vk.DescriptorSetLayout](),
		pipeLayouts:  newTable[vk.PipelineLayout](),
		pipelines:    newTable[vk.Pipeline](),
		renderPasses: newTable[vk.RenderPass](),
		framebuffers: newTable[vk.Framebuffer](),
		descPools:    newTable[*poolSets](),
		descSets:     newTable[vk.DescriptorSet](),
		queryPools:   newTable[vk.QueryPool](),
		cmdBuffers:   newTable[vk.CommandBuffer](),
		fences:       newTable[vk.Fence](),
	}
	if err := d.createInstance(o); err != nil {
		return nil, err
	}
	if err := d.pickPhysicalDevice(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	if err := d.createDevice(); err != nil {
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}

	var pool vk.CommandPool
	res := vk.CreateCommandPool(d.device, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.family,
	}, nil, &pool)
	if err := check("create command pool", res); err != nil {
		vk.DestroyDevice(d.device, nil)
		vk.DestroyInstance(d.instance, nil)
		return nil, err
	}
	d.pool = pool

	slogger().Info("vkdriver: device created",
		"device", d.props.DeviceName,
		"queueFamily", d.family,
		"nullDescriptor", d.props.NullDescriptor,
		"validation", o.validation)
	return d, nil
}

func (d *Driver) createInstance(o options) error {
	var layers []string
	if o.validation {
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer+"\x00")
		} else {
			slogger().Warn("vkdriver: validation requested but layer is not installed", "layer", validationLayer)
		}
	}
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   o.appName + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "rhi\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 0, 0),
	}
	var instance vk.Instance
	res := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:               vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:    appInfo,
		EnabledLayerCount:   uint32(len(layers)),
		PpEnabledLayerNames: layers,
	}, nil, &instance)
	if err := check("create instance", res); err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return fmt.Errorf("vkdriver: init instance: %w", err)
	}
	d.instance = instance
	return nil
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	props := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, props) != vk.Success {
		return false
	}
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.LayerName[:]) == name {
			return true
		}
	}
	return false
}

func (d *Driver) pickPhysicalDevice() error {
	var count uint32
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, nil)); err != nil {
		return err
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := check("enumerate physical devices", vk.EnumeratePhysicalDevices(d.instance, &count, gpus)); err != nil {
		return err
	}
	want := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
	for _, gpu := range gpus {
		var n uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &n, nil)
		families := make([]vk.QueueFamilyProperties, n)
		vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &n, families)
		for i := range families {
			families[i].Deref()
			if families[i].QueueFlags&want != want {
				continue
			}
			d.gpu = gpu
			d.family = uint32(i)

			var props vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(gpu, &props)
			props.Deref()
			props.Limits.Deref()
			d.props.DeviceName = vk.ToString(props.DeviceName[:])
			d.props.TimestampPeriod = props.Limits.TimestampPeriod

			vk.GetPhysicalDeviceMemoryProperties(gpu, &d.memory)
			d.memory.Deref()
			return nil
		}
	}
	return ErrNoDevice
}

func (d *Driver) deviceExtensions() []string {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(d.gpu, "", &count, nil) != vk.Success {
		return nil
	}
	props := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(d.gpu, "", &count, props) != vk.Success {
		return nil
	}
	names := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		names = append(names, vk.ToString(p.ExtensionName[:]))
	}
	return names
}

// createDevice requests nullDescriptor when VK_EXT_robustness2 is
// available and retries without it if the feature is missing.
func (d *Driver) createDevice() error {
	robust := slices.Contains(d.deviceExtensions(), robustness2Ext)
	err := d.tryCreateDevice(robust)
	if robust && err != nil && errors.Is(err, errFeatureNotPresent) {
		slogger().Debug("vkdriver: nullDescriptor not supported", "device", d.props.DeviceName)
		robust = false
		err = d.tryCreateDevice(false)
	}
	if err != nil {
		return err
	}
	d.props.NullDescriptor = robust

	var queue vk.Queue
	vk.GetDeviceQueue(d.device, d.family, 0, &queue)
	d.queue = queue
	return nil
}

var errFeatureNotPresent = errors.New("feature not present")

func (d *Driver) tryCreateDevice(robust bool) error {
	// Everything the device supports is enabled.
	var supported vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.gpu, &supported)

	info := &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.family,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{supported},
	}
	var features robustness2Features
	if robust {
		features = robustness2Features{sType: robustness2SType, nullDescriptor: vk.True}
		info.EnabledExtensionCount = 1
		info.PpEnabledExtensionNames = []string{robustness2Ext + "\x00"}
		info.PNext = unsafe.Pointer(&features)
	}
	var device vk.Device
	res := vk.CreateDevice(d.gpu, info, nil, &device)
	if res == vk.ErrorFeatureNotPresent {
		return fmt.Errorf("vkdriver: create device: %w", errFeatureNotPresent)
	}
	if err := check("create device", res); err != nil {
		return err
	}
	d.device = device
	return nil
}

// Properties implements vulkan.Driver.
func (d *Driver) Properties() vulkan.Properties { return d.props }

// findMemoryType returns the first memory type allowed by bits that has
// every flag in want.
func (d *Driver) findMemoryType(bits uint32, want vk.MemoryPropertyFlagBits) (uint32, error) {
	for i := uint32(0); i < d.memory.MemoryTypeCount; i++ {
		mt := d.memory.MemoryTypes[i]
		mt.Deref()
		if bits&(1<<i) != 0 && vk.MemoryPropertyFlagBits(mt.PropertyFlags)&want == want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("vkdriver: no memory type for bits %#x flags %#x", bits, want)
}

func (d *Driver) allocate(req vk.MemoryRequirements, want vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	req.Deref()
	index, err := d.findMemoryType(req.MemoryTypeBits, want)
	if err != nil {
		return nil, err
	}
	var mem vk.DeviceMemory
	res := vk.AllocateMemory(d.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: index,
	}, nil, &mem)
	if err := check("allocate memory", res); err != nil {
		return nil, err
	}
	return mem, nil
}

// AllocateCommandBuffer implements vulkan.Driver.
func (d *Driver) AllocateCommandBuffer() (vulkan.CommandBuffer, error) {
	d.poolMu.Lock()
	defer d.poolMu.Unlock()
	cbs := make([]vk.CommandBuffer, 1)
	res := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cbs)
	if err := check("allocate command buffer", res); err != nil {
		return 0, err
	}
	return vulkan.CommandBuffer(d.cmdBuffers.put(cbs[0])), nil
}

// FreeCommandBuffer implements vulkan.Driver.
func (d *Driver) FreeCommandBuffer(cb vulkan.CommandBuffer) {
	c, ok := d.cmdBuffers.take(uint64(cb))
	if !ok {
		return
	}
	d.poolMu.Lock()
	defer d.poolMu.Unlock()
	vk.FreeCommandBuffers(d.device, d.pool, 1, []vk.CommandBuffer{c})
}

// BeginCommandBuffer implements vulkan.Driver. The buffer is reset
// implicitly.
func (d *Driver) BeginCommandBuffer(cb vulkan.CommandBuffer) error {
	res := vk.BeginCommandBuffer(d.cmd(cb), &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})
	return check("begin command buffer", res)
}

// EndCommandBuffer implements vulkan.Driver.
func (d *Driver) EndCommandBuffer(cb vulkan.CommandBuffer) error {
	return check("end command buffer", vk.EndCommandBuffer(d.cmd(cb)))
}

// Submit implements vulkan.Driver.
func (d *Driver) Submit(cb vulkan.CommandBuffer, fence vulkan.Fence) error {
	info := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{d.cmd(cb)},
	}
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return check("queue submit", vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{info}, d.fences.get(uint64(fence))))
}

// CreateFence implements vulkan.Driver.
func (d *Driver) CreateFence(signaled bool) (vulkan.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := check("create fence", vk.CreateFence(d.device, &info, nil, &f)); err != nil {
		return 0, err
	}
	return vulkan.Fence(d.fences.put(f)), nil
}

// WaitForFence implements vulkan.Driver.
func (d *Driver) WaitForFence(f vulkan.Fence, timeout time.Duration) error {
	fences := []vk.Fence{d.fences.get(uint64(f))}
	return check("wait for fence", vk.WaitForFences(d.device, 1, fences, vk.True, uint64(timeout.Nanoseconds())))
}

// ResetFence implements vulkan.Driver.
func (d *Driver) ResetFence(f vulkan.Fence) error {
	return check("reset fence", vk.ResetFences(d.device, 1, []vk.Fence{d.fences.get(uint64(f))}))
}

// DestroyFence implements vulkan.Driver.
func (d *Driver) DestroyFence(f vulkan.Fence) {
	if v, ok := d.fences.take(uint64(f)); ok {
		vk.DestroyFence(d.device, v, nil)
	}
}

// WaitIdle implements vulkan.Driver.
func (d *Driver) WaitIdle() error {
	return check("device wait idle", vk.DeviceWaitIdle(d.device))
}

// Destroy implements vulkan.Driver. Objects the backend leaked are
// destroyed in dependency order and reported.
func (d *Driver) Destroy() {
	if d.device == nil {
		return
	}
	_ = d.WaitIdle()

	leaked := 0
	for _, v := range d.framebuffers.drain() {
		vk.DestroyFramebuffer(d.device, v, nil)
		leaked++
	}
	for _, v := range d.pipelines.drain() {
		vk.DestroyPipeline(d.device, v, nil)
		leaked++
	}
	for _, v := range d.renderPasses.drain() {
		vk.DestroyRenderPass(d.device, v, nil)
		leaked++
	}
	for _, v := range d.pipeLayouts.drain() {
		vk.DestroyPipelineLayout(d.device, v, nil)
		leaked++
	}
	for _, v := range d.setLayouts.drain() {
		vk.DestroyDescriptorSetLayout(d.device, v, nil)
		leaked++
	}
	d.descSets.drain()
	for _, v := range d.descPools.drain() {
		vk.DestroyDescriptorPool(d.device, v.pool, nil)
		leaked++
	}
	for _, v := range d.views.drain() {
		vk.DestroyImageView(d.device, v, nil)
		leaked++
	}
	for _, v := range d.images.drain() {
		vk.DestroyImage(d.device, v.img, nil)
		vk.FreeMemory(d.device, v.mem, nil)
		leaked++
	}
	for _, v := range d.buffers.drain() {
		d.freeBuffer(v)
		leaked++
	}
	for _, v := range d.samplers.drain() {
		vk.DestroySampler(d.device, v, nil)
		leaked++
	}
	for _, v := range d.modules.drain() {
		vk.DestroyShaderModule(d.device, v, nil)
		leaked++
	}
	for _, v := range d.queryPools.drain() {
		vk.DestroyQueryPool(d.device, v, nil)
		leaked++
	}
	for _, v := range d.fences.drain() {
		vk.DestroyFence(d.device, v, nil)
		leaked++
	}
	d.cmdBuffers.drain()
	vk.DestroyCommandPool(d.device, d.pool, nil)
	vk.DestroyDevice(d.device, nil)
	vk.DestroyInstance(d.instance, nil)
	d.device = nil

	if leaked > 0 {
		slogger().Warn("vkdriver: objects still alive at destroy", "count", leaked)
	}
}

func (d *Driver) cmd(cb vulkan.CommandBuffer) vk.CommandBuffer {
	return d.cmdBuffers.get(uint64(cb))
}
