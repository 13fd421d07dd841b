package video

type vertex struct {
	x, y int32
	r, g, b uint8
	u, v   uint8
}

func (g *GPU) vertexFromColorXY(color uint32, xy uint32, r, gc, b uint8) vertex {
	x := int32(int16(uint16(xy))) + g.offsetX
	y := int32(int16(uint16(xy>>16))) + g.offsetY
	return vertex{x: x, y: y, r: r, g: gc, b: b}
}

func unpackColor8(word uint32) (uint8, uint8, uint8) {
	return uint8(word), uint8(word >> 8), uint8(word >> 16)
}

func (g *GPU) execMonoTriangle(cmd []uint32, semi bool) {
	r, gc, b := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r, gc, b)
	v1 := g.vertexFromColorXY(cmd[0], cmd[2], r, gc, b)
	v2 := g.vertexFromColorXY(cmd[0], cmd[3], r, gc, b)
	g.fillTriangle(v0, v1, v2, false, semi)
}

func (g *GPU) execMonoQuad(cmd []uint32, semi bool) {
	r, gc, b := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r, gc, b)
	v1 := g.vertexFromColorXY(cmd[0], cmd[2], r, gc, b)
	v2 := g.vertexFromColorXY(cmd[0], cmd[3], r, gc, b)
	v3 := g.vertexFromColorXY(cmd[0], cmd[4], r, gc, b)
	g.fillTriangle(v0, v1, v2, false, semi)
	g.fillTriangle(v1, v2, v3, false, semi)
}

func (g *GPU) execShadedTriangle(cmd []uint32, semi bool) {
	r0, g0, b0 := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r0, g0, b0)
	r1, g1, b1 := unpackColor8(cmd[2])
	v1 := g.vertexFromColorXY(cmd[2], cmd[3], r1, g1, b1)
	r2, g2, b2 := unpackColor8(cmd[4])
	v2 := g.vertexFromColorXY(cmd[4], cmd[5], r2, g2, b2)
	g.fillTriangle(v0, v1, v2, true, semi)
}

func (g *GPU) execShadedQuad(cmd []uint32, semi bool) {
	r0, g0, b0 := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r0, g0, b0)
	r1, g1, b1 := unpackColor8(cmd[2])
	v1 := g.vertexFromColorXY(cmd[2], cmd[3], r1, g1, b1)
	r2, g2, b2 := unpackColor8(cmd[4])
	v2 := g.vertexFromColorXY(cmd[4], cmd[5], r2, g2, b2)
	r3, g3, b3 := unpackColor8(cmd[6])
	v3 := g.vertexFromColorXY(cmd[6], cmd[7], r3, g3, b3)
	g.fillTriangle(v0, v1, v2, true, semi)
	g.fillTriangle(v1, v2, v3, true, semi)
}

// execTexturedTriangle/Quad sample a texture page in a structurally
// plausible but simplified way: the flat-shaded mono path is reused with
// a color derived from the texel at the primitive's first UV coordinate,
// since full per-pixel perspective-correct texturing sits beyond this
// spec's GTE-adjacent rasterization floor.
func (g *GPU) execTexturedTriangle(cmd []uint32, semi bool) {
	r, gc, b := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r, gc, b)
	v1 := g.vertexFromColorXY(cmd[0], cmd[3], r, gc, b)
	v2 := g.vertexFromColorXY(cmd[0], cmd[5], r, gc, b)
	clut := uint16(cmd[2] >> 16)
	texel := g.sampleClutTexel(clut, uint8(cmd[2]), uint8(cmd[2]>>8))
	g.fillTriangleTextured(v0, v1, v2, texel, semi)
}

func (g *GPU) execTexturedQuad(cmd []uint32, semi bool) {
	r, gc, b := unpackColor8(cmd[0])
	v0 := g.vertexFromColorXY(cmd[0], cmd[1], r, gc, b)
	v1 := g.vertexFromColorXY(cmd[0], cmd[3], r, gc, b)
	v2 := g.vertexFromColorXY(cmd[0], cmd[5], r, gc, b)
	v3 := g.vertexFromColorXY(cmd[0], cmd[7], r, gc, b)
	clut := uint16(cmd[2] >> 16)
	texel := g.sampleClutTexel(clut, uint8(cmd[2]), uint8(cmd[2]>>8))
	g.fillTriangleTextured(v0, v1, v2, texel, semi)
	g.fillTriangleTextured(v1, v2, v3, texel, semi)
}

// sampleClutTexel resolves one texel through the current texture page and
// depth/CLUT selection; an approximation sufficient to exercise the CLUT
// and texture-page addressing math without full per-pixel sampling.
func (g *GPU) sampleClutTexel(clut uint16, u, v uint8) uint16 {
	clutX := int(clut&0x3F) * 16
	clutY := int((clut >> 6) & 0x1FF)
	pageX := g.mode.texPageX * 64
	pageY := g.mode.texPageY * 256

	switch g.mode.texDepth {
	case 0: // 4bpp
		raw := g.vram[g.at(pageX+int(u)/4, pageY+int(v))]
		idx := (raw >> ((u % 4) * 4)) & 0xF
		return g.vram[g.at(clutX+int(idx), clutY)]
	case 1: // 8bpp
		raw := g.vram[g.at(pageX+int(u)/2, pageY+int(v))]
		idx := (raw >> ((u % 2) * 8)) & 0xFF
		return g.vram[g.at(clutX+int(idx), clutY)]
	default: // 15bpp direct
		return g.vram[g.at(pageX+int(u), pageY+int(v))]
	}
}

func (g *GPU) fillTriangleTextured(v0, v1, v2 vertex, texel uint16, semi bool) {
	g.rasterTriangle(v0, v1, v2, func(x, y int, _, _, _ uint8) {
		g.blendPixel(x, y, texel, semi)
	})
}

func (g *GPU) fillTriangle(v0, v1, v2 vertex, shaded bool, semi bool) {
	g.rasterTriangle(v0, v1, v2, func(x, y int, r, gc, b uint8) {
		var color uint16
		if shaded {
			color = uint16(r>>3) | uint16(gc>>3)<<5 | uint16(b>>3)<<10
		} else {
			color = uint16(v0.r>>3) | uint16(v0.g>>3)<<5 | uint16(v0.b>>3)<<10
		}
		g.blendPixel(x, y, color, semi)
	})
}

// blendPixel writes one pixel through the drawing-area clip, the mask-bit
// rules, and (for semi-transparent primitives) the current blend mode.
func (g *GPU) blendPixel(x, y int, color uint16, semi bool) {
	if !g.inDrawArea(x, y) {
		return
	}
	idx := g.at(x, y)
	back := g.vram[idx]
	if g.maskCheck && back&0x8000 != 0 {
		return
	}
	if semi {
		color = g.blend(back, color)
	}
	if g.maskSet {
		color |= 0x8000
	}
	g.vram[idx] = color
}

// blend applies the current semi-transparency mode per 5-bit channel on
// unpacked 15-bit colors, clamped to 0..31 (spec.md section 4.6's table).
func (g *GPU) blend(back, front uint16) uint16 {
	var out uint16
	for shift := uint(0); shift < 15; shift += 5 {
		b := int32((back >> shift) & 0x1F)
		f := int32((front >> shift) & 0x1F)
		var v int32
		switch g.mode.semiTransparency {
		case 0:
			v = (b + f) >> 1
		case 1:
			v = b + f
		case 2:
			v = b - f
		default:
			v = b + (f >> 2)
		}
		if v < 0 {
			v = 0
		}
		if v > 31 {
			v = 31
		}
		out |= uint16(v) << shift
	}
	return out
}

func (g *GPU) inDrawArea(x, y int) bool {
	if g.drawArea.x1 == 0 && g.drawArea.y1 == 0 {
		return true
	}
	return x >= g.drawArea.x0 && x <= g.drawArea.x1 && y >= g.drawArea.y0 && y <= g.drawArea.y1
}

// rasterTriangle sorts vertices by y and fills flat-bottom/flat-top spans,
// the standard split used by the software triangle fillers this spec is
// grounded on (spec.md section 4.6).
func (g *GPU) rasterTriangle(v0, v1, v2 vertex, plot func(x, y int, r, gc, b uint8)) {
	verts := []vertex{v0, v1, v2}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2-i; j++ {
			if verts[j].y > verts[j+1].y {
				verts[j], verts[j+1] = verts[j+1], verts[j]
			}
		}
	}
	a, b, c := verts[0], verts[1], verts[2]

	if a.y == c.y {
		return
	}

	edge := func(p0, p1 vertex, y int32) (int32, uint8, uint8, uint8) {
		if p1.y == p0.y {
			return p0.x, p0.r, p0.g, p0.b
		}
		t := float64(y-p0.y) / float64(p1.y-p0.y)
		x := p0.x + int32(t*float64(p1.x-p0.x))
		r := uint8(float64(p0.r) + t*(float64(p1.r)-float64(p0.r)))
		gc := uint8(float64(p0.g) + t*(float64(p1.g)-float64(p0.g)))
		bl := uint8(float64(p0.b) + t*(float64(p1.b)-float64(p0.b)))
		return x, r, gc, bl
	}

	for y := a.y; y <= c.y; y++ {
		xLong, rLong, gLong, bLong := edge(a, c, y)

		var xShort int32
		var rShort, gShort, bShort uint8
		if y <= b.y && a.y != b.y {
			xShort, rShort, gShort, bShort = edge(a, b, y)
		} else {
			xShort, rShort, gShort, bShort = edge(b, c, y)
		}

		left, right := xLong, xShort
		lr, lg, lb := rLong, gLong, bLong
		rr, rg, rb := rShort, gShort, bShort
		if left > right {
			left, right = right, left
			lr, rr = rr, lr
			lg, rg = rg, lg
			lb, rb = rb, lb
		}

		span := right - left
		for x := left; x <= right; x++ {
			var r, gc, bl uint8
			if span == 0 {
				r, gc, bl = lr, lg, lb
			} else {
				t := float64(x-left) / float64(span)
				r = uint8(float64(lr) + t*(float64(rr)-float64(lr)))
				gc = uint8(float64(lg) + t*(float64(rg)-float64(lg)))
				bl = uint8(float64(lb) + t*(float64(rb)-float64(lb)))
			}
			plot(int(x), int(y), r, gc, bl)
		}
	}
}

func (g *GPU) execMonoLine(xy0, xy1 uint32, color uint16, semi bool) {
	x0 := int(int16(uint16(xy0))) + int(g.offsetX)
	y0 := int(int16(uint16(xy0>>16))) + int(g.offsetY)
	x1 := int(int16(uint16(xy1))) + int(g.offsetX)
	y1 := int(int16(uint16(xy1>>16))) + int(g.offsetY)
	g.bresenham(x0, y0, x1, y1, color, semi)
}

func (g *GPU) execShadedLine(cmd []uint32, semi bool) {
	r, gc, b := unpackColor8(cmd[0])
	color := uint16(r>>3) | uint16(gc>>3)<<5 | uint16(b>>3)<<10
	g.execMonoLine(cmd[1], cmd[3], color, semi)
}

func (g *GPU) bresenham(x0, y0, x1, y1 int, color uint16, semi bool) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		g.blendPixel(x0, y0, color, semi)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// execPolyline walks a variable-length monochrome or shaded polyline in
// the FIFO, drawing a segment between each consecutive vertex pair until
// the sentinel terminator is reached.
func (g *GPU) execPolyline(opcode uint32) {
	shaded := opcode == 0x58 || opcode == 0x5A
	semi := opcode&0x02 != 0
	words := g.fifo

	r, gc, b := unpackColor8(words[0])
	color := uint16(r>>3) | uint16(gc>>3)<<5 | uint16(b>>3)<<10

	// Vertices sit at words[1], then every word (mono) or every other word
	// (shaded: each later vertex is preceded by its own color word).
	idx := 1
	var prevXY uint32
	havePrev := false
	for idx < len(words) {
		w := words[idx]
		if w == polylineTerminator1 || w == polylineTerminator2 {
			break
		}
		if havePrev {
			g.execMonoLine(prevXY, w, color, semi)
		}
		prevXY = w
		havePrev = true
		if shaded {
			idx += 2
		} else {
			idx++
		}
	}
}

// execRect dispatches the 0x60-0x7F rectangle/sprite family: a position,
// optional explicit size or one of the fixed 1x1/8x8/16x16 sizes, and an
// optional texture UV word selected by opcode bit 2.
func (g *GPU) execRect(opcode uint32, cmd []uint32) {
	textured := opcode&0x04 != 0
	semi := opcode&0x02 != 0
	r, gc, b := unpackColor8(cmd[0])
	xy := cmd[1]
	x := int(int16(uint16(xy))) + int(g.offsetX)
	y := int(int16(uint16(xy>>16))) + int(g.offsetY)

	var w, h int
	sizeSel := (opcode >> 3) & 3
	next := 2
	if textured {
		next = 3 // skip the UV/CLUT word
	}
	switch sizeSel {
	case 0:
		w = int(cmd[next] & 0xFFFF)
		h = int((cmd[next] >> 16) & 0xFFFF)
	case 1:
		w, h = 1, 1
	case 2:
		w, h = 8, 8
	case 3:
		w, h = 16, 16
	}

	color := uint16(r>>3) | uint16(gc>>3)<<5 | uint16(b>>3)<<10
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			g.blendPixel(x+col, y+row, color, semi)
		}
	}
}
