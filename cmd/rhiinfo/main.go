// Command rhiinfo lists the linked RHI backends, probes which of them can
// open a device, and renders a smoke-test frame on one of them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/cmdlist"

	_ "github.com/gogpu/rhi/null"
	_ "github.com/gogpu/rhi/vulkan/vkdriver"
	_ "github.com/gogpu/rhi/wgpu"
)

const (
	vertexShader = `
@vertex
fn main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos, 0.0, 1.0);
}
`
	pixelShader = `
@group(1) @binding(64) var<uniform> tint: vec4<f32>;
@fragment
fn main() -> @location(0) vec4<f32> {
    return tint;
}
`
)

func main() {
	var (
		backend = flag.String("backend", "", "backend for the smoke frame (default $RHI_BACKEND or null)")
		frames  = flag.Int("frames", 3, "number of smoke-test frames")
		probe   = flag.Bool("probe", true, "open every backend to check availability")
		timeout = flag.Duration("timeout", 10*time.Second, "probe timeout per backend")
		verbose = flag.Bool("v", false, "log RHI diagnostics to stderr")
	)
	flag.Parse()

	if *verbose {
		rhi.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	name := *backend
	if name == "" {
		name = os.Getenv("RHI_BACKEND")
	}
	if name == "" {
		name = "null"
	}

	out := newTable(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	if *probe {
		results, err := probeBackends(context.Background(), rhi.Backends(), *timeout)
		if err != nil {
			log.Fatalf("probe: %v", err)
		}
		out.row("BACKEND", "STATUS", "DEVICE")
		for _, r := range results {
			if r.err != nil {
				out.row(r.backend, "unavailable", r.err.Error())
				continue
			}
			out.row(r.backend, "ok", r.device)
		}
		out.flush()
	}

	stats, err := smokeTest(name, *frames)
	if err != nil {
		log.Fatalf("smoke test on %s: %v", name, err)
	}
	out.row("SMOKE TEST", "VALUE")
	out.row("backend", stats.device)
	out.row("executions", fmt.Sprint(stats.frame.NumExecutions))
	out.row("commands", fmt.Sprint(stats.frame.NumCommands))
	out.row("draw calls", fmt.Sprint(stats.frame.NumDrawCalls))
	out.row("elapsed", stats.elapsed.Round(time.Microsecond).String())
	out.flush()
}

// table aligns columns for terminals and writes tab-separated lines
// otherwise.
type table struct {
	w     io.Writer
	tw    *tabwriter.Writer
	human bool
}

func newTable(w io.Writer, human bool) *table {
	t := &table{w: w, human: human}
	if human {
		t.tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	}
	return t
}

func (t *table) row(cols ...string) {
	line := ""
	for i, c := range cols {
		if i > 0 {
			line += "\t"
		}
		line += c
	}
	if t.human {
		fmt.Fprintln(t.tw, line)
		return
	}
	fmt.Fprintln(t.w, line)
}

func (t *table) flush() {
	if t.human {
		t.tw.Flush()
		fmt.Fprintln(t.w)
	}
}

type probeResult struct {
	backend string
	device  string
	err     error
}

var errProbeTimeout = errors.New("timed out opening device")

// probeBackends opens every backend concurrently. A backend that fails to
// open is reported in its result, not as an error.
func probeBackends(ctx context.Context, names []string, timeout time.Duration) ([]probeResult, error) {
	var (
		mu      sync.Mutex
		results = make([]probeResult, 0, len(names))
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, name := range names {
		g.Go(func() error {
			done := make(chan probeResult, 1)
			go func() {
				r := probeResult{backend: name}
				dev, err := rhi.OpenDevice(name)
				if err != nil {
					r.err = err
				} else {
					r.device = dev.Name()
					r.err = dev.Close()
				}
				done <- r
			}()
			var r probeResult
			select {
			case r = <-done:
			case <-time.After(timeout):
				r = probeResult{backend: name, err: errProbeTimeout}
			case <-ctx.Done():
				return ctx.Err()
			}
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(results, func(i, j int) bool { return results[i].backend < results[j].backend })
	return results, nil
}

type smokeStats struct {
	device  string
	frame   cmdlist.FrameStats
	elapsed time.Duration
}

// smokeTest clears a small render target and draws a triangle into it
// frames times through a command list.
func smokeTest(backend string, frames int) (smokeStats, error) {
	dev, err := rhi.OpenDevice(backend)
	if err != nil {
		return smokeStats{}, err
	}
	defer dev.Close()

	var res []rhi.Resource
	defer func() {
		for i := len(res) - 1; i >= 0; i-- {
			res[i].Release()
		}
	}()
	keep := func(r rhi.Resource, err error) error {
		if err == nil {
			res = append(res, r)
		}
		return err
	}

	target, err := dev.CreateTexture(rhi.TextureDesc{
		Label:  "rhiinfo_target",
		Format: gputypes.TextureFormatRGBA8Unorm,
		Width:  64,
		Height: 64,
		Flags:  rhi.TextureRenderTarget,
	}, nil)
	if err := keep(target, err); err != nil {
		return smokeStats{}, err
	}
	rtv, err := dev.CreateRenderTargetView(rhi.RenderTargetViewDesc{Label: "rhiinfo_rtv", Texture: target})
	if err := keep(rtv, err); err != nil {
		return smokeStats{}, err
	}
	vertices := []byte{
		0, 0, 0, 0, 0, 0, 0x80, 0x3f, // (0, 1)
		0, 0, 0x80, 0xbf, 0, 0, 0x80, 0xbf, // (-1, -1)
		0, 0, 0x80, 0x3f, 0, 0, 0x80, 0xbf, // (1, -1)
	}
	vb, err := dev.CreateBuffer(rhi.BufferDesc{Label: "rhiinfo_vertices", Size: uint64(len(vertices)), Stride: 8, Flags: rhi.BufferVertex}, vertices)
	if err := keep(vb, err); err != nil {
		return smokeStats{}, err
	}
	vs, err := dev.CreateShader(rhi.ShaderDesc{Label: "rhiinfo_vs", Stage: rhi.StageVertex, Source: vertexShader})
	if err := keep(vs, err); err != nil {
		return smokeStats{}, err
	}
	ps, err := dev.CreateShader(rhi.ShaderDesc{Label: "rhiinfo_ps", Stage: rhi.StagePixel, Source: pixelShader, NumConstants: 4})
	if err := keep(ps, err); err != nil {
		return smokeStats{}, err
	}
	pipe, err := dev.CreateGraphicsPipelineState(rhi.GraphicsPipelineDesc{
		Label:               "rhiinfo_pipeline",
		VertexShader:        vs,
		PixelShader:         ps,
		InputLayout:         []rhi.VertexElement{{Format: gputypes.VertexFormatFloat32x2, Stride: 8}},
		RenderTargetFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err := keep(pipe, err); err != nil {
		return smokeStats{}, err
	}

	q := cmdlist.NewCommandQueue(dev.Context())
	l := cmdlist.New()
	start := time.Now()
	for i := range frames {
		l.SetRenderTargets([]rhi.RenderTargetView{rtv}, nil)
		l.ClearRenderTargetView(rtv, rhi.Color{R: 0.1, G: 0.1, B: 0.1, A: 1})
		l.SetViewport(64, 64, 0, 1, 0, 0)
		l.SetGraphicsPipelineState(pipe)
		l.SetVertexBuffers([]rhi.Buffer{vb}, 0)
		l.Set32BitShaderConstants(ps, []uint32{0x3f800000, 0, 0, 0x3f800000})
		l.Draw(3, 0)
		if err := q.ExecuteCommandList(l); err != nil {
			return smokeStats{}, fmt.Errorf("frame %d: %w", i, err)
		}
	}
	if err := q.WaitForGPU(); err != nil {
		return smokeStats{}, err
	}
	return smokeStats{device: dev.Name(), frame: q.Stats(), elapsed: time.Since(start)}, nil
}
