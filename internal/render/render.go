package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	background = color.RGBA{R: 0x2b, G: 0x1b, B: 0x2f, A: 0xff}
	panel      = color.RGBA{R: 0x3d, G: 0x2a, B: 0x44, A: 0xff}
	accent     = color.RGBA{R: 0xc0, G: 0x39, B: 0x2b, A: 0xff}
	textColor  = color.RGBA{R: 0xee, G: 0xe6, B: 0xf0, A: 0xff}
	mutedColor = color.RGBA{R: 0xa8, G: 0x96, B: 0xad, A: 0xff}
)

const (
	width      = 640
	padding    = 20
	lineHeight = 28
	maxName    = 32
)

type Row struct {
	Rank  int
	Name  string
	Value string
}

type Card struct {
	Name         string
	Level        int
	XP           int64
	Needed       int64
	Rank         int
	Members      int
	TotalXP      int64
	Messages     int
	VoiceMinutes int
	Streak       int
}

type canvas struct {
	img *image.RGBA
}

func newCanvas(w, h int) *canvas {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: background}, image.Point{}, draw.Src)
	return &canvas{img: img}
}

func (c *canvas) fill(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

func (c *canvas) text(x, y int, col color.Color, s string) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (c *canvas) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// Leaderboard draws a ranked table as a PNG.
func Leaderboard(title string, rows []Row) ([]byte, error) {
	height := padding*3 + lineHeight*(len(rows)+1)
	c := newCanvas(width, height)
	c.fill(image.Rect(0, 0, width, padding+lineHeight), panel)
	c.text(padding, padding+13, textColor, title)

	if len(rows) == 0 {
		c.text(padding, padding*2+lineHeight+13, mutedColor, "No activity recorded yet.")
		return c.encode()
	}
	for i, row := range rows {
		y := padding*2 + lineHeight*(i+1)
		if i%2 == 0 {
			c.fill(image.Rect(padding/2, y-4, width-padding/2, y+lineHeight-8), panel)
		}
		rankColor := mutedColor
		if row.Rank <= 3 {
			rankColor = accent
		}
		c.text(padding, y+13, rankColor, fmt.Sprintf("#%d", row.Rank))
		c.text(padding+56, y+13, textColor, truncate(row.Name, maxName))
		c.text(width-padding-7*len(row.Value), y+13, mutedColor, row.Value)
	}
	return c.encode()
}

// Profile draws a member's level card with an XP progress bar.
func Profile(card Card) ([]byte, error) {
	const height = 220
	c := newCanvas(width, height)
	c.fill(image.Rect(padding/2, padding/2, width-padding/2, height-padding/2), panel)

	c.text(padding*2, padding*3, textColor, truncate(card.Name, maxName))
	c.text(width-padding*2-7*12, padding*3, accent, fmt.Sprintf("Rank #%d", card.Rank))
	c.text(padding*2, padding*3+lineHeight, textColor, fmt.Sprintf("Level %d", card.Level))

	barTop := padding*3 + lineHeight*2
	bar := image.Rect(padding*2, barTop, width-padding*2, barTop+18)
	c.fill(bar, background)
	if card.Needed > 0 {
		progress := min(float64(card.XP)/float64(card.Needed), 1)
		filled := bar.Min.X + int(float64(bar.Dx())*progress)
		c.fill(image.Rect(bar.Min.X, bar.Min.Y, filled, bar.Max.Y), accent)
	}
	c.text(padding*2, barTop+18+lineHeight-8, mutedColor, fmt.Sprintf("%d / %d XP", card.XP, card.Needed))

	stats := fmt.Sprintf("Total XP %d   Messages %d   Voice %dm   Streak %d", card.TotalXP, card.Messages, card.VoiceMinutes, card.Streak)
	c.text(padding*2, height-padding*2, mutedColor, stats)
	if card.Members > 0 {
		of := fmt.Sprintf("of %d", card.Members)
		c.text(width-padding*2-7*len(of), padding*3+lineHeight, mutedColor, of)
	}
	return c.encode()
}
