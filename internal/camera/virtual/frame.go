package virtual

import (
	"image"
	"math"
	"sync"
	"time"

	"github.com/tphakala/camcore/internal/camera"
)

const (
	// brightnessPeriod is the number of seconds of one light cycle
	brightnessPeriod = 10
	brightnessSwing  = 96
	gradientSpan     = 64
)

// frame is a gray8 image shared read-only between consumers
type frame struct {
	data    []byte
	format  camera.FrameFormat
	ts      time.Time
	seq     uint64
	once    sync.Once
	release func()
}

func (f *frame) Planes() []camera.Plane {
	return []camera.Plane{{Data: f.data, RowStride: f.format.Width, PixelStride: 1}}
}

func (f *frame) Format() camera.FrameFormat { return f.format }

func (f *frame) Timestamp() time.Time { return f.ts }

func (f *frame) Sequence() uint64 { return f.seq }

// Close releases the frame. Only the first call has an effect.
func (f *frame) Close() {
	f.once.Do(func() {
		if f.release != nil {
			f.release()
		}
	})
}

// brightness returns the mean level of frame seq: a slow sine around mid-gray
func brightness(seq uint64, fps int) float64 {
	phase := 2 * math.Pi * float64(seq) / float64(fps*brightnessPeriod)
	return 128 + brightnessSwing*math.Sin(phase)
}

// render draws frame seq: a horizontal gradient centred on the current brightness
func render(width, height, fps int, seq uint64) []byte {
	base := brightness(seq, fps)

	row := make([]byte, width)
	for x := range row {
		v := base + float64(x*gradientSpan)/float64(width) - gradientSpan/2
		row[x] = byte(math.Round(min(max(v, 0), 255)))
	}

	data := make([]byte, width*height)
	for y := range height {
		copy(data[y*width:], row)
	}
	return data
}

// scaleGray resamples a gray8 buffer to w x h by nearest neighbour
func scaleGray(data []byte, srcW, srcH, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	if w == srcW && h == srcH {
		copy(img.Pix, data)
		return img
	}
	for y := range h {
		sy := y * srcH / h
		for x := range w {
			img.Pix[y*img.Stride+x] = data[sy*srcW+x*srcW/w]
		}
	}
	return img
}
