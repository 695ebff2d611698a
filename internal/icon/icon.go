// Package icon renders system tray icons for issueping. The tray shows
// a plain dot while idle and a count badge when the history holds
// notified issues for the active repository. Icons are 48x48, sized for
// KDE and GNOME trays.
package icon

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Size is the rendered icon size in pixels.
const Size = 48

var (
	blue  = color.RGBA{13, 110, 253, 255}  // badge fill
	gray  = color.RGBA{108, 117, 125, 255} // idle fill
	white = color.RGBA{255, 255, 255, 255} // badge text
)

// Badge renders a circle badge with the issue count, or nil when the
// count is zero (callers fall back to Default). Counts above nine render
// as "+".
func Badge(count int) ([]byte, error) {
	if count <= 0 {
		return nil, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	drawCircle(img, blue)
	drawBoldText(img, format(count), Size/2, Size/2)

	return encode(img)
}

// Default renders the idle tray icon: a plain gray dot.
func Default() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Size, Size))
	drawCircle(img, gray)
	return encode(img)
}

func encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawCircle(img *image.RGBA, fill color.RGBA) {
	radius := float64(Size) / 2
	for py := range Size {
		for px := range Size {
			dx := float64(px) - radius + 0.5
			dy := float64(py) - radius + 0.5
			if math.Sqrt(dx*dx+dy*dy) <= radius {
				img.Set(px, py, fill)
			}
		}
	}
}

// drawBoldText centers text on (centerX, centerY) using Go's embedded
// monospace bold font. Rendering failures fall back to a bare badge.
func drawBoldText(img *image.RGBA, text string, centerX, centerY int) {
	face, err := opentype.Parse(gomonobold.TTF)
	if err != nil {
		return
	}

	fontFace, err := opentype.NewFace(face, &opentype.FaceOptions{
		Size: 32,
		DPI:  72,
	})
	if err != nil {
		return
	}
	defer fontFace.Close() //nolint:errcheck // close error is not critical for rendering

	bounds, advance := font.BoundString(fontFace, text)
	visualCenter := (bounds.Max.Y + bounds.Min.Y) / 2

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(white),
		Face: fontFace,
		Dot: fixed.Point26_6{
			X: fixed.I(centerX - advance.Ceil()/2),
			Y: fixed.I(centerY) - visualCenter,
		},
	}
	drawer.DrawString(text)
}

func format(n int) string {
	if n > 9 {
		return "+"
	}
	return strconv.Itoa(n)
}

// Cache memoizes rendered icons by count so menu refreshes don't re-rasterize.
type Cache struct {
	mu    sync.RWMutex
	icons map[int][]byte
}

// NewCache creates an icon cache.
func NewCache() *Cache {
	return &Cache{icons: make(map[int][]byte)}
}

// Lookup retrieves a cached rendering, or false when absent.
func (c *Cache) Lookup(count int) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.icons[count]
	return data, ok
}

// Put stores a rendering.
func (c *Cache) Put(count int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.icons) > 100 {
		clear(c.icons)
	}
	c.icons[count] = data
}
