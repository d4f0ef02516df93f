// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Magnetar Labs

// Package ssd1306 drives an SSD1306-class monochrome OLED controller
// over an I2C bridge tunnel. Drawing happens in an in-memory page-packed
// framebuffer; Display flushes it to the panel in one transaction.
package ssd1306

import (
	"fmt"
	"math"
)

// Framebuffer is the panel's bit-packed image buffer: one byte holds 8
// vertically stacked pixels of one page. Bit y&7 of the byte at
// x + (y>>3)*width is pixel (x, y). This layout is the panel's binary
// contract and must not change.
type Framebuffer struct {
	width  int
	height int
	buf    []byte
}

// NewFramebuffer allocates a cleared buffer. Height must be a multiple
// of 8, matching the panel's page organization.
func NewFramebuffer(width, height int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 || height%8 != 0 {
		return nil, fmt.Errorf("invalid framebuffer geometry %dx%d", width, height)
	}
	return &Framebuffer{
		width:  width,
		height: height,
		buf:    make([]byte, width*height/8),
	}, nil
}

// Width returns the pixel width.
func (f *Framebuffer) Width() int { return f.width }

// Height returns the pixel height.
func (f *Framebuffer) Height() int { return f.height }

// Pages returns the number of 8-pixel page rows.
func (f *Framebuffer) Pages() int { return f.height / 8 }

// Bytes exposes the packed buffer for flushing to the panel. Callers
// must treat it as read-only.
func (f *Framebuffer) Bytes() []byte { return f.buf }

// Clear switches every pixel off.
func (f *Framebuffer) Clear() {
	for i := range f.buf {
		f.buf[i] = 0
	}
}

// SetPixel sets or clears one pixel. Out-of-bounds coordinates are a
// no-op.
func (f *Framebuffer) SetPixel(x, y int, on bool) {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return
	}
	idx := x + (y>>3)*f.width
	mask := byte(1) << (y & 7)
	if on {
		f.buf[idx] |= mask
	} else {
		f.buf[idx] &^= mask
	}
}

// GetPixel reports one pixel's state; out-of-bounds reads are false.
func (f *Framebuffer) GetPixel(x, y int) bool {
	if x < 0 || x >= f.width || y < 0 || y >= f.height {
		return false
	}
	return f.buf[x+(y>>3)*f.width]&(1<<(y&7)) != 0
}

// Line draws a straight segment between two points with an integer
// stepper. Horizontal, vertical and single-point degenerate cases fall
// out of the same loop.
func (f *Framebuffer) Line(x0, y0, x1, y1 int, on bool) {
	dx := x1 - x0
	if dx < 0 {
		dx = -dx
	}
	dy := y1 - y0
	if dy < 0 {
		dy = -dy
	}
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}

	err := dx - dy
	for {
		f.SetPixel(x0, y0, on)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

// Rect draws a w×h rectangle with its top-left corner at (x, y), either
// filled or as a one-pixel outline.
func (f *Framebuffer) Rect(x, y, w, h int, filled, on bool) {
	if w <= 0 || h <= 0 {
		return
	}
	if filled {
		for yy := y; yy < y+h; yy++ {
			for xx := x; xx < x+w; xx++ {
				f.SetPixel(xx, yy, on)
			}
		}
		return
	}
	f.Line(x, y, x+w-1, y, on)
	f.Line(x, y+h-1, x+w-1, y+h-1, on)
	f.Line(x, y, x, y+h-1, on)
	f.Line(x+w-1, y, x+w-1, y+h-1, on)
}

// Arc samples a circular arc around (cx, cy) in one-degree steps from
// startDeg to endDeg.
func (f *Framebuffer) Arc(cx, cy, r, startDeg, endDeg int, on bool) {
	if r < 0 {
		return
	}
	for deg := startDeg; deg <= endDeg; deg++ {
		rad := float64(deg) * math.Pi / 180
		x := cx + int(math.Round(float64(r)*math.Cos(rad)))
		y := cy + int(math.Round(float64(r)*math.Sin(rad)))
		f.SetPixel(x, y, on)
	}
}

// Circle is a full 0..360 degree arc.
func (f *Framebuffer) Circle(cx, cy, r int, on bool) {
	f.Arc(cx, cy, r, 0, 360, on)
}

// Text rasterizes s starting at (x, y). With a nil font the fixed
// built-in 5x8 font is used, top-left anchored, one blank column
// between glyphs. With a glyph-table font the cursor x advances by each
// glyph's declared advance, characters outside the font's range are
// skipped, and the line wraps when a glyph would run past the right
// edge.
func (f *Framebuffer) Text(x, y int, s string, font *Font, on bool) {
	if font == nil {
		f.textBuiltin(x, y, s, on)
		return
	}
	f.textFont(x, y, s, font, on)
}

// textBuiltin renders the fixed font: 5 data columns per glyph,
// column-major bits, LSB is the top pixel.
func (f *Framebuffer) textBuiltin(x, y int, s string, on bool) {
	for _, ch := range []byte(s) {
		if ch < builtinFirst || ch > builtinLast {
			ch = '?'
		}
		glyph := &font5x8[ch-builtinFirst]
		for col := 0; col < builtinWidth; col++ {
			bits := glyph[col]
			for row := 0; row < builtinHeight; row++ {
				if bits&(1<<row) != 0 {
					f.SetPixel(x+col, y+row, on)
				}
			}
		}
		x += builtinWidth + 1
	}
}

func (f *Framebuffer) textFont(x, y int, s string, font *Font, on bool) {
	startX := x
	for _, ch := range []byte(s) {
		if ch < font.First || ch > font.Last {
			continue
		}
		g := &font.Glyphs[ch-font.First]
		if x+int(g.XOffset)+int(g.Width) > f.width {
			x = startX
			y += int(font.YAdvance)
		}
		f.blitGlyph(x, y, g, font.Bitmap, on)
		x += int(g.XAdvance)
	}
}

// blitGlyph copies a glyph's packed 1-bit bitmap, row-major MSB-first,
// into the framebuffer at the glyph's offset position.
func (f *Framebuffer) blitGlyph(x, y int, g *Glyph, bitmap []byte, on bool) {
	bit := int(g.Offset) * 8
	for row := 0; row < int(g.Height); row++ {
		for col := 0; col < int(g.Width); col++ {
			b := bitmap[bit>>3]
			if b&(0x80>>(bit&7)) != 0 {
				f.SetPixel(x+int(g.XOffset)+col, y+int(g.YOffset)+row, on)
			}
			bit++
		}
	}
}
