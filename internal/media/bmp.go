package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Display panel geometry. The firmware blits the BMP as-is, so the
// rendered image must be exactly this size.
const (
	displayWidth  = 96
	displayHeight = 72
)

// renderDisplayBMP decodes an image and renders it as a 96x72 24-bit
// uncompressed BMP, letterboxed on black to preserve aspect ratio.
func renderDisplayBMP(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("empty image")
	}

	// Fit inside the panel, preserving aspect ratio.
	scale := float64(displayWidth) / float64(srcW)
	if s := float64(displayHeight) / float64(srcH); s < scale {
		scale = s
	}
	if scale > 1 {
		scale = 1
	}
	dstW := int(float64(srcW) * scale)
	dstH := int(float64(srcH) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	offX := (displayWidth - dstW) / 2
	offY := (displayHeight - dstH) / 2

	// Sample into a letterboxed RGB frame.
	frame := make([]byte, displayWidth*displayHeight*3)
	for y := 0; y < dstH; y++ {
		srcY := bounds.Min.Y + y*srcH/dstH
		for x := 0; x < dstW; x++ {
			srcX := bounds.Min.X + x*srcW/dstW
			r, g, b, _ := src.At(srcX, srcY).RGBA()
			i := ((offY+y)*displayWidth + offX + x) * 3
			frame[i] = byte(r >> 8)
			frame[i+1] = byte(g >> 8)
			frame[i+2] = byte(b >> 8)
		}
	}

	return encodeBMP24(frame, displayWidth, displayHeight), nil
}

// encodeBMP24 writes an uncompressed 24-bit BMP from a top-down RGB
// frame. BMP rows are bottom-up, BGR ordered, padded to 4 bytes.
func encodeBMP24(rgb []byte, width, height int) []byte {
	rowSize := (width*3 + 3) &^ 3
	pixelBytes := rowSize * height
	const headerSize = 14 + 40
	fileSize := headerSize + pixelBytes

	out := make([]byte, fileSize)
	out[0] = 'B'
	out[1] = 'M'
	binary.LittleEndian.PutUint32(out[2:], uint32(fileSize))
	binary.LittleEndian.PutUint32(out[10:], headerSize)

	binary.LittleEndian.PutUint32(out[14:], 40) // BITMAPINFOHEADER
	binary.LittleEndian.PutUint32(out[18:], uint32(width))
	binary.LittleEndian.PutUint32(out[22:], uint32(height))
	binary.LittleEndian.PutUint16(out[26:], 1)  // planes
	binary.LittleEndian.PutUint16(out[28:], 24) // bits per pixel
	binary.LittleEndian.PutUint32(out[34:], uint32(pixelBytes))

	for y := 0; y < height; y++ {
		srcRow := (height - 1 - y) * width * 3
		dstRow := headerSize + y*rowSize
		for x := 0; x < width; x++ {
			si := srcRow + x*3
			di := dstRow + x*3
			out[di] = rgb[si+2]
			out[di+1] = rgb[si+1]
			out[di+2] = rgb[si]
		}
	}
	return out
}
