// Package palette assigns stable display colors to chart labels.
package palette

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Role labels. They bypass hashing and always render in their fixed color.
const (
	LabelAnomalyHigh   = "anomaly_high"
	LabelNormal        = "normal"
	LabelChannelProbes = "channel_probes"
)

type RGB struct {
	R, G, B uint8
}

func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) RGBA(alpha float64) string {
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, strconv.FormatFloat(alpha, 'f', -1, 64))
}

// ParseHex parses "#rrggbb".
func ParseHex(s string) (RGB, error) {
	s = strings.TrimSpace(s)
	if len(s) != 7 || s[0] != '#' {
		return RGB{}, fmt.Errorf("color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

var DefaultColors = []RGB{
	{0x39, 0xff, 0x14}, // neon green
	{0x00, 0xbf, 0xff},
	{0xff, 0xd7, 0x00},
	{0xff, 0x45, 0x00},
	{0x94, 0x00, 0xd3},
	{0xad, 0xff, 0x2f},
	{0xdc, 0x14, 0x3c},
	{0x00, 0xce, 0xd1},
	{0xff, 0x8c, 0x00},
	{0x1e, 0x90, 0xff},
	{0xff, 0x14, 0x93},
	{0x7c, 0xfc, 0x00},
	{0xff, 0x63, 0x47},
	{0x48, 0x3d, 0x8b},
	{0xc7, 0x15, 0x85},
	{0xda, 0xa5, 0x20},
}

func DefaultReserved() map[string]RGB {
	return map[string]RGB{
		LabelAnomalyHigh:   {239, 68, 68},
		LabelNormal:        {34, 197, 94},
		LabelChannelProbes: {57, 255, 20},
	}
}

// Palette is immutable after construction and safe for concurrent use.
type Palette struct {
	colors   []RGB
	reserved map[string]RGB
}

// New copies its inputs. An empty color list falls back to DefaultColors and
// a nil reserved map to DefaultReserved.
func New(colors []RGB, reserved map[string]RGB) *Palette {
	if len(colors) == 0 {
		colors = DefaultColors
	}
	if reserved == nil {
		reserved = DefaultReserved()
	}
	p := &Palette{
		colors:   append([]RGB(nil), colors...),
		reserved: make(map[string]RGB, len(reserved)),
	}
	for k, v := range reserved {
		p.reserved[k] = v
	}
	return p
}

func Default() *Palette { return New(nil, nil) }

// ColorFor returns the color for label. Reserved labels always come back as
// rgba at the requested alpha. Other labels pick a palette entry by hash and
// come back as hex when alpha is 1, rgba otherwise.
func (p *Palette) ColorFor(label string, alpha float64) string {
	if c, ok := p.reserved[label]; ok {
		return c.RGBA(alpha)
	}
	base := p.colors[p.Index(label)]
	if alpha == 1 {
		return base.Hex()
	}
	return base.RGBA(alpha)
}

// Index is the palette slot for an unreserved label.
func (p *Palette) Index(label string) int {
	h := int64(Hash(label))
	if h < 0 {
		h = -h
	}
	return int(h % int64(len(p.colors)))
}

// Hash folds the UTF-16 code units of label with h = c + (h<<5 - h), wrapping
// at 32 bits on every step.
func Hash(label string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(label)) {
		h = int32(c) + (h<<5 - h)
	}
	return h
}
