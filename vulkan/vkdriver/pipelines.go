package vkdriver

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/gogpu/rhi/vulkan"
)

// CreateDescriptorSetLayout implements vulkan.Driver.
func (d *Driver) CreateDescriptorSetLayout(bindings []vulkan.LayoutBinding) (vulkan.DescriptorSetLayout, error) {
	lbs := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		lbs[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
	}
	var l vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(lbs)),
		PBindings:    lbs,
	}, nil, &l)
	if err := check("create descriptor set layout", res); err != nil {
		return 0, err
	}
	return vulkan.DescriptorSetLayout(d.setLayouts.put(l)), nil
}

// DestroyDescriptorSetLayout implements vulkan.Driver.
func (d *Driver) DestroyDescriptorSetLayout(h vulkan.DescriptorSetLayout) {
	if v, ok := d.setLayouts.take(uint64(h)); ok {
		vk.DestroyDescriptorSetLayout(d.device, v, nil)
	}
}

// CreatePipelineLayout implements vulkan.Driver. Push constants form one
// range visible to every stage.
func (d *Driver) CreatePipelineLayout(sets []vulkan.DescriptorSetLayout, pushConstantBytes uint32) (vulkan.PipelineLayout, error) {
	ci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(sets)),
		PSetLayouts:    getAll(d.setLayouts, sets),
	}
	if pushConstantBytes > 0 {
		ci.PushConstantRangeCount = 1
		ci.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageAll),
			Size:       pushConstantBytes,
		}}
	}
	var l vk.PipelineLayout
	if err := check("create pipeline layout", vk.CreatePipelineLayout(d.device, &ci, nil, &l)); err != nil {
		return 0, err
	}
	return vulkan.PipelineLayout(d.pipeLayouts.put(l)), nil
}

// DestroyPipelineLayout implements vulkan.Driver.
func (d *Driver) DestroyPipelineLayout(h vulkan.PipelineLayout) {
	if v, ok := d.pipeLayouts.take(uint64(h)); ok {
		vk.DestroyPipelineLayout(d.device, v, nil)
	}
}

func (d *Driver) stage(s vulkan.ShaderStageInfo) vk.PipelineShaderStageCreateInfo {
	entry := s.EntryPoint
	if entry == "" {
		entry = "main"
	}
	return vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(s.Stage),
		Module: d.modules.get(uint64(s.Module)),
		PName:  entry + "\x00",
	}
}

// CreateGraphicsPipeline implements vulkan.Driver.
func (d *Driver) CreateGraphicsPipeline(info vulkan.GraphicsPipelineInfo) (vulkan.Pipeline, error) {
	stages := make([]vk.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		stages[i] = d.stage(s)
	}

	bindings := make([]vk.VertexInputBindingDescription, len(info.Bindings))
	for i, b := range info.Bindings {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: rate}
	}
	attrs := make([]vk.VertexInputAttributeDescription, len(info.Attributes))
	for i, a := range info.Attributes {
		format := vertexFormat(a.Format)
		if format == vk.FormatUndefined {
			return 0, fmt.Errorf("vkdriver: create graphics pipeline: unsupported vertex format %v", a.Format)
		}
		attrs[i] = vk.VertexInputAttributeDescription{Location: a.Location, Binding: a.Binding, Format: format, Offset: a.Offset}
	}
	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(bindings)),
		PVertexBindingDescriptions:      bindings,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopology(info.Topology),
		PrimitiveRestartEnable: vk.False,
	}
	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	polygonMode := vk.PolygonModeFill
	if info.Wireframe {
		polygonMode = vk.PolygonModeLine
	}
	frontFace := vk.FrontFaceClockwise
	if info.FrontCounterClockwise {
		frontFace = vk.FrontFaceCounterClockwise
	}
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        bool32(info.DepthClamp),
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygonMode,
		CullMode:                vk.CullModeFlags(info.CullMode),
		FrontFace:               frontFace,
		DepthBiasEnable:         vk.False,
		LineWidth:               1,
	}
	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: sampleCount(info.Samples),
		SampleShadingEnable:  vk.False,
		MinSampleShading:     1,
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       bool32(info.DepthTest),
		DepthWriteEnable:      bool32(info.DepthWrite),
		DepthCompareOp:        vk.CompareOp(info.DepthCompare),
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
		MaxDepthBounds:        1,
	}

	attachments := make([]vk.PipelineColorBlendAttachmentState, len(info.Blend))
	for i, b := range info.Blend {
		attachments[i] = blendAttachment(b)
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
	}
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
		vk.DynamicStateBlendConstants,
	}
	dynamic := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	ci := []vk.GraphicsPipelineCreateInfo{{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewport,
		PRasterizationState: &raster,
		PMultisampleState:   &multisample,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamic,
		Layout:              d.pipeLayouts.get(uint64(info.Layout)),
		RenderPass:          d.renderPasses.get(uint64(info.RenderPass)),
		Subpass:             0,
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("create graphics pipeline", vk.CreateGraphicsPipelines(d.device, nil, 1, ci, nil, pipelines)); err != nil {
		return 0, err
	}
	return vulkan.Pipeline(d.pipelines.put(pipelines[0])), nil
}

// blendAttachment returns source-over blending, with or without
// premultiplied color.
func blendAttachment(b vulkan.ColorBlendInfo) vk.PipelineColorBlendAttachmentState {
	s := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit,
		),
		BlendEnable: bool32(b.Enable),
	}
	if !b.Enable {
		return s
	}
	src := vk.BlendFactorSrcAlpha
	if b.Premultiplied {
		src = vk.BlendFactorOne
	}
	s.SrcColorBlendFactor = src
	s.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	s.ColorBlendOp = vk.BlendOpAdd
	s.SrcAlphaBlendFactor = vk.BlendFactorOne
	s.DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
	s.AlphaBlendOp = vk.BlendOpAdd
	return s
}

// CreateComputePipeline implements vulkan.Driver.
func (d *Driver) CreateComputePipeline(info vulkan.ComputePipelineInfo) (vulkan.Pipeline, error) {
	ci := []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  d.stage(info.Stage),
		Layout: d.pipeLayouts.get(uint64(info.Layout)),
	}}
	pipelines := make([]vk.Pipeline, 1)
	if err := check("create compute pipeline", vk.CreateComputePipelines(d.device, nil, 1, ci, nil, pipelines)); err != nil {
		return 0, err
	}
	return vulkan.Pipeline(d.pipelines.put(pipelines[0])), nil
}

// DestroyPipeline implements vulkan.Driver.
func (d *Driver) DestroyPipeline(h vulkan.Pipeline) {
	if v, ok := d.pipelines.take(uint64(h)); ok {
		vk.DestroyPipeline(d.device, v, nil)
	}
}

func attachmentDescription(a vulkan.AttachmentInfo) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         textureFormat(a.Format),
		Samples:        sampleCount(a.Samples),
		LoadOp:         vk.AttachmentLoadOp(a.Load),
		StoreOp:        vk.AttachmentStoreOp(a.Store),
		StencilLoadOp:  vk.AttachmentLoadOp(a.Load),
		StencilStoreOp: vk.AttachmentStoreOp(a.Store),
		InitialLayout:  vk.ImageLayout(a.Layout),
		FinalLayout:    vk.ImageLayout(a.Layout),
	}
}

// CreateRenderPass implements vulkan.Driver.
func (d *Driver) CreateRenderPass(info vulkan.RenderPassInfo) (vulkan.RenderPass, error) {
	descs := make([]vk.AttachmentDescription, 0, len(info.Colors)+1)
	colors := make([]vk.AttachmentReference, 0, len(info.Colors))
	for i, c := range info.Colors {
		descs = append(descs, attachmentDescription(c))
		colors = append(colors, vk.AttachmentReference{Attachment: uint32(i), Layout: vk.ImageLayout(c.Layout)})
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colors)),
		PColorAttachments:    colors,
	}
	if ds := info.DepthStencil; ds != nil {
		descs = append(descs, attachmentDescription(*ds))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(descs) - 1),
			Layout:     vk.ImageLayout(ds.Layout),
		}
	}
	var p vk.RenderPass
	res := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}, nil, &p)
	if err := check("create render pass", res); err != nil {
		return 0, err
	}
	return vulkan.RenderPass(d.renderPasses.put(p)), nil
}

// DestroyRenderPass implements vulkan.Driver.
func (d *Driver) DestroyRenderPass(h vulkan.RenderPass) {
	if v, ok := d.renderPasses.take(uint64(h)); ok {
		vk.DestroyRenderPass(d.device, v, nil)
	}
}

// CreateFramebuffer implements vulkan.Driver.
func (d *Driver) CreateFramebuffer(info vulkan.FramebufferInfo) (vulkan.Framebuffer, error) {
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPasses.get(uint64(info.RenderPass)),
		AttachmentCount: uint32(len(info.Attachments)),
		PAttachments:    getAll(d.views, info.Attachments),
		Width:           info.Width,
		Height:          info.Height,
		Layers:          max(info.Layers, 1),
	}, nil, &fb)
	if err := check("create framebuffer", res); err != nil {
		return 0, err
	}
	return vulkan.Framebuffer(d.framebuffers.put(fb)), nil
}

// DestroyFramebuffer implements vulkan.Driver.
func (d *Driver) DestroyFramebuffer(h vulkan.Framebuffer) {
	if v, ok := d.framebuffers.take(uint64(h)); ok {
		vk.DestroyFramebuffer(d.device, v, nil)
	}
}
