package devices

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Framebuffer is a linear RGBA pixel surface backed by plain memory
// stores. There is no display backend; the surface exists so guest
// render loops run and their output can be captured as a snapshot
// file and reloaded.
type Framebuffer struct {
	width  int
	height int
	pixels []byte // 4 bytes per pixel, RGBA
}

// NewFramebuffer creates a width x height RGBA surface.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pixels: make([]byte, width*height*4),
	}
}

// Size returns the address window the framebuffer occupies.
func (f *Framebuffer) Size() uint64 { return uint64(len(f.pixels)) }

// Bounds returns the surface dimensions.
func (f *Framebuffer) Bounds() (width, height int) {
	return f.width, f.height
}

func (f *Framebuffer) MmioRead(pa uint64, size int) (uint64, bool) {
	off := pa % f.Size()
	if off+uint64(size) > uint64(len(f.pixels)) {
		return 0, false
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(f.pixels[off+uint64(i)])
	}
	return v, true
}

func (f *Framebuffer) MmioWrite(pa uint64, size int, value uint64) bool {
	off := pa % f.Size()
	if off+uint64(size) > uint64(len(f.pixels)) {
		return false
	}
	for i := 0; i < size; i++ {
		f.pixels[off+uint64(i)] = byte(value >> (i * 8))
	}
	return true
}

// Snapshot file layout: an 8-byte header of two little-endian uint32
// dimensions, then width*height*4 raw RGBA bytes.

// Save writes the surface to path.
func (f *Framebuffer) Save(path string) error {
	buf := make([]byte, 8+len(f.pixels))
	binary.LittleEndian.PutUint32(buf[0:], uint32(f.width))
	binary.LittleEndian.PutUint32(buf[4:], uint32(f.height))
	copy(buf[8:], f.pixels)
	return os.WriteFile(path, buf, 0o644)
}

// Load restores a surface previously written by Save. The stored
// dimensions must match.
func (f *Framebuffer) Load(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(buf) < 8 {
		return fmt.Errorf("framebuffer snapshot %s: truncated header", path)
	}
	w := int(binary.LittleEndian.Uint32(buf[0:]))
	hgt := int(binary.LittleEndian.Uint32(buf[4:]))
	if w != f.width || hgt != f.height {
		return fmt.Errorf("framebuffer snapshot %s: %dx%d does not match %dx%d",
			path, w, hgt, f.width, f.height)
	}
	if len(buf) != 8+len(f.pixels) {
		return fmt.Errorf("framebuffer snapshot %s: truncated pixel data", path)
	}
	copy(f.pixels, buf[8:])
	return nil
}
