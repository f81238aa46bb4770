//go:build gocv

package localmodel

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Model is a loaded network. It is safe for concurrent use; forward passes
// are serialised because gocv.Net is not.
type Model struct {
	config Config
	mu     sync.Mutex
	net    gocv.Net
}

// Load reads the network from disk. The returned Model is ready to use.
func Load(ctx context.Context, config Config) (*Model, error) {
	config = config.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(config.ModelPath)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "model file: %v", err)
	}
	if info.Size() == 0 {
		return nil, errors.Wrapf(ErrUnavailable, "model file is empty: %s", config.ModelPath)
	}

	var (
		net     gocv.Net
		loadErr error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				loadErr = errors.Wrapf(ErrUnavailable, "panic while loading model: %v", r)
			}
		}()
		net = gocv.ReadNet(config.ModelPath, config.ConfigPath)
	}()
	if loadErr != nil {
		return nil, loadErr
	}
	if net.Empty() {
		return nil, errors.Wrapf(ErrUnavailable, "model could not be parsed: %s", config.ModelPath)
	}

	_ = net.SetPreferableBackend(gocv.NetBackendDefault)
	_ = net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Model{config: config, net: net}, nil
}

// Detect decodes the image, runs one forward pass and returns pixel boxes
func (m *Model) Detect(ctx context.Context, data []byte) (*types.DetectionSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	defer img.Close()
	if img.Empty() {
		return nil, errors.New("decode image: empty result")
	}

	width, height := img.Cols(), img.Rows()

	blob := gocv.BlobFromImage(img, 1.0/127.5, m.config.InputSize, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	m.mu.Unlock()
	defer out.Close()

	// SSD output is [1, 1, N, 7]: image id, class id, score, x1, y1, x2, y2
	rows := out.Total() / 7
	if rows <= 0 {
		return &types.DetectionSet{Width: width, Height: height, Detections: []types.RawDetection{}}, nil
	}
	flat := out.Reshape(1, rows)
	defer flat.Close()

	set := &types.DetectionSet{Width: width, Height: height, Detections: make([]types.RawDetection, 0)}
	for i := 0; i < rows; i++ {
		score := flat.GetFloatAt(i, 2)
		if score < m.config.ConfidenceThreshold {
			continue
		}
		name := className(int(flat.GetFloatAt(i, 1)))
		if name == "" {
			continue
		}

		x1 := float64(flat.GetFloatAt(i, 3)) * float64(width)
		y1 := float64(flat.GetFloatAt(i, 4)) * float64(height)
		x2 := float64(flat.GetFloatAt(i, 5)) * float64(width)
		y2 := float64(flat.GetFloatAt(i, 6)) * float64(height)

		set.Detections = append(set.Detections, types.RawDetection{
			Class:  name,
			Score:  float64(score),
			BBox:   []float64{x1, y1, x2 - x1, y2 - y1},
			Format: types.FormatPixel,
		})
	}
	return set, nil
}

// Close releases the network
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
