// Package shader generates the WGSL programs of the compositor and compiles
// them to SPIR-V with naga.
//
// Every gpu.ProgramKey maps to one shader module with a vs_main vertex entry
// point and an fs_main fragment entry point. All programs share one bind
// group layout:
//
//	@group(0) @binding(0) uniforms (see PackUniforms)
//	@group(0) @binding(1) sampler for the source texture
//	@group(0) @binding(2) linear sampler for the other textures
//	@group(0) @binding(3..6) source, mask, backdrop and alpha textures
//
// The vertex shader expands six vertices per quad from the uniform quad
// array, so draws need no vertex buffers.
package shader

import (
	"strings"

	"github.com/gogpu/compositor/gpu"
)

// Binding slots of the shared bind group layout.
const (
	BindingUniforms      = 0
	BindingSourceSampler = 1
	BindingAuxSampler    = 2
	BindingFirstTexture  = 3
)

// Entry points of every module.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

const commonSource = `struct QuadData {
    matrix: mat4x4<f32>,
    tex_rect: vec4<f32>,
    vertex_opacity: vec4<f32>,
}

struct Uniforms {
    viewport: vec4<f32>,
    color: vec4<f32>,
    color_matrix: mat4x4<f32>,
    color_offset: vec4<f32>,
    mask_rect: vec4<f32>,
    backdrop_rect: vec4<f32>,
    tex_transform: mat4x4<f32>,
    params: vec4<f32>,
    quads: array<QuadData, 8>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(1) var source_sampler: sampler;
@group(0) @binding(2) var aux_sampler: sampler;
@group(0) @binding(3) var source_tex: texture_2d<f32>;
@group(0) @binding(4) var mask_tex: texture_2d<f32>;
@group(0) @binding(5) var backdrop_tex: texture_2d<f32>;
@group(0) @binding(6) var alpha_tex: texture_2d<f32>;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) local: vec2<f32>,
    @location(1) tex_coord: vec2<f32>,
    @location(2) opacity: f32,
}

@vertex
fn vs_main(@builtin(vertex_index) vi: u32) -> VertexOutput {
    var corners = array<vec2<f32>, 6>(
        vec2<f32>(0.0, 0.0), vec2<f32>(1.0, 0.0), vec2<f32>(1.0, 1.0),
        vec2<f32>(0.0, 0.0), vec2<f32>(1.0, 1.0), vec2<f32>(0.0, 1.0),
    );
    var corner_index = array<u32, 6>(0u, 1u, 2u, 0u, 2u, 3u);
    let quad = u.quads[vi / 6u];
    let local = corners[vi % 6u];
    let p = quad.matrix * vec4<f32>(local, 0.0, 1.0);

    // Window y grows upward from framebuffer row 0.
    var out: VertexOutput;
    out.position = vec4<f32>(p.x * 2.0 / u.viewport.x - p.w, p.w - p.y * 2.0 / u.viewport.y, 0.0, p.w);
    out.local = local;
    out.tex_coord = quad.tex_rect.xy + local * quad.tex_rect.zw;
    out.opacity = quad.vertex_opacity[corner_index[vi % 6u]];
    return out;
}
`

// Source returns the WGSL source of the program identified by key.
func Source(key gpu.ProgramKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(commonSource)
	if key.Backdrop {
		sb.WriteString(blendSource(key.BlendMode))
	}

	sb.WriteString("\n@fragment\nfn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {\n")
	if key.AA {
		sb.WriteString(`    let fw = max(fwidth(in.local), vec2<f32>(1e-6));
    let edge = min(in.local, vec2<f32>(1.0) - in.local) / fw;
    let coverage = clamp(min(edge.x, edge.y) + 0.5, 0.0, 1.0);
`)
	}
	writeFragmentBody(&sb, key)
	sb.WriteString("    c = c * u.params.x;\n")
	if key.AA {
		sb.WriteString("    c = c * coverage;\n")
	}
	if key.Backdrop {
		sb.WriteString(`    let backdrop_uv = (in.position.xy - u.backdrop_rect.xy) / u.backdrop_rect.zw;
    let b = textureSample(backdrop_tex, aux_sampler, backdrop_uv);
    c = composite(c, b);
`)
	}
	sb.WriteString("    return c;\n}\n")
	return sb.String(), nil
}

func writeFragmentBody(sb *strings.Builder, key gpu.ProgramKey) {
	switch key.Kind {
	case gpu.ProgramSolidColor:
		sb.WriteString("    var c = u.color;\n")

	case gpu.ProgramDebugBorder:
		sb.WriteString(`    let px = min(in.local, vec2<f32>(1.0) - in.local) / max(fwidth(in.local), vec2<f32>(1e-6));
    if (min(px.x, px.y) >= u.params.y) {
        discard;
    }
    var c = u.color;
`)

	case gpu.ProgramTile:
		sb.WriteString("    var c = textureSample(source_tex, source_sampler, in.tex_coord);\n")
		if key.Swizzle {
			sb.WriteString("    c = c.bgra;\n")
		}

	case gpu.ProgramTexture:
		sb.WriteString("    var c = textureSample(source_tex, source_sampler, in.tex_coord);\n")
		if !key.Premultiplied {
			sb.WriteString("    c = vec4<f32>(c.rgb * c.a, c.a);\n")
		}
		if key.Background {
			sb.WriteString("    c = c + u.color * (1.0 - c.a);\n")
		}
		sb.WriteString("    c = c * in.opacity;\n")

	case gpu.ProgramRenderPass:
		sb.WriteString("    var c = textureSample(source_tex, source_sampler, in.tex_coord);\n")
		if key.Mask {
			sb.WriteString(`    let mask_uv = u.mask_rect.xy + in.local * u.mask_rect.zw;
    let mask = textureSample(mask_tex, aux_sampler, mask_uv).a;
`)
		}
		if key.ColorMatrix {
			sb.WriteString(`    let straight = vec4<f32>(c.rgb / max(c.a, 1e-6), c.a);
    c = clamp(u.color_matrix * straight + u.color_offset, vec4<f32>(0.0), vec4<f32>(1.0));
    c = vec4<f32>(c.rgb * c.a, c.a);
`)
		}
		if key.Mask {
			sb.WriteString("    c = c * mask;\n")
		}

	case gpu.ProgramYUVVideo:
		sb.WriteString(`    let y = textureSample(source_tex, source_sampler, in.tex_coord).r;
    let cb = textureSample(mask_tex, source_sampler, in.tex_coord).r;
    let cr = textureSample(backdrop_tex, source_sampler, in.tex_coord).r;
    let rgb = clamp((u.color_matrix * vec4<f32>(y, cb, cr, 0.0)).rgb + u.color_offset.rgb, vec3<f32>(0.0), vec3<f32>(1.0));
`)
		if key.Alpha {
			sb.WriteString("    let a = textureSample(alpha_tex, source_sampler, in.tex_coord).r;\n")
		} else {
			sb.WriteString("    let a = 1.0;\n")
		}
		sb.WriteString("    var c = vec4<f32>(rgb * a, a);\n")

	case gpu.ProgramStreamVideo:
		sb.WriteString(`    let t = u.tex_transform * vec4<f32>(in.tex_coord, 0.0, 1.0);
    var c = textureSample(source_tex, source_sampler, t.xy / t.w);
`)
	}
}
