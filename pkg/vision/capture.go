package vision

import (
	"context"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/screen-guide/pkg/clock"
	"github.com/teslashibe/screen-guide/pkg/frame"
)

// DeviceCapturer reads frames from an OpenCV video device, file or stream
// URL. Config.Device selects it: "0" opens the first device.
type DeviceCapturer struct {
	clock clock.Clock

	mu     sync.Mutex
	device string
	vc     *gocv.VideoCapture
	img    gocv.Mat
}

// NewDeviceCapturer creates a capturer. A nil clock uses the wall clock.
func NewDeviceCapturer(c clock.Clock) *DeviceCapturer {
	if c == nil {
		c = clock.Real{}
	}
	return &DeviceCapturer{clock: c}
}

// Open opens config.Device and requests the configured geometry and rate.
func (d *DeviceCapturer) Open(ctx context.Context, config frame.Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()

	vc, err := gocv.OpenVideoCapture(config.Device)
	if err != nil {
		return &frame.CaptureError{Device: config.Device, Op: "open", Err: frame.ErrDeviceUnavailable}
	}
	if !vc.IsOpened() {
		vc.Close()
		return &frame.CaptureError{Device: config.Device, Op: "open", Err: frame.ErrDeviceUnavailable}
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(config.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(config.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(config.TargetFPS))

	d.device = config.Device
	d.vc = vc
	d.img = gocv.NewMat()
	return nil
}

// Read grabs the next frame as BGR.
func (d *DeviceCapturer) Read(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.vc == nil {
		return frame.Frame{}, &frame.CaptureError{Device: d.device, Op: "read", Err: frame.ErrClosed}
	}
	if ok := d.vc.Read(&d.img); !ok || d.img.Empty() {
		return frame.Frame{}, &frame.CaptureError{Device: d.device, Op: "read", Err: frame.ErrDeviceUnavailable}
	}

	f := FromMat(d.img)
	f.Timestamp = d.clock.Now()
	return f, nil
}

// Close releases the device.
func (d *DeviceCapturer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DeviceCapturer) closeLocked() error {
	if d.vc == nil {
		return nil
	}
	err := d.vc.Close()
	d.img.Close()
	d.vc = nil
	return err
}
