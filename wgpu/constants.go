package wgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// constantsBlocks packs shader constants into uniform buffers. A block
// serves one batch; blocks are queued for deletion when the batch ends, so
// queue writes never touch memory an in-flight batch reads.
type constantsBlocks struct {
	dev  *Device
	raw  hal.Buffer
	used uint64
}

// write copies values into the current block at a 256-byte aligned offset
// and returns the block and offset.
func (c *constantsBlocks) write(values []uint32, n uint32) (hal.Buffer, uint64, error) {
	size := constantsSize(n)
	need := alignUp(size, constantsAlignment)
	if c.raw == nil || c.used+need > c.dev.opts.constantsSize {
		c.retire()
		raw, err := c.dev.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "rhi_constants",
			Size:  c.dev.opts.constantsSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("wgpu: create constants block: %w", err)
		}
		c.raw, c.used = raw, 0
	}

	data := make([]byte, size)
	for i, v := range values[:min(uint32(len(values)), n)] {
		binary.LittleEndian.PutUint32(data[4*i:], v)
	}
	offset := c.used
	if err := c.dev.queue.WriteBuffer(c.raw, offset, data); err != nil {
		return nil, 0, fmt.Errorf("wgpu: write constants: %w", err)
	}
	c.used += need
	return c.raw, offset, nil
}

// retire hands the current block to the deletion queue.
func (c *constantsBlocks) retire() {
	if c.raw == nil {
		return
	}
	raw := c.raw
	c.dev.deferDestroy(func() { c.dev.device.DestroyBuffer(raw) })
	c.raw, c.used = nil, 0
}
