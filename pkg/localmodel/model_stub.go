//go:build !gocv

package localmodel

import (
	"context"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Model is a placeholder in builds without OpenCV
type Model struct{}

// Load always fails: the binary was built without the "gocv" tag
func Load(_ context.Context, _ Config) (*Model, error) {
	return nil, errors.Wrap(ErrUnavailable, "built without gocv support")
}

func (m *Model) Detect(_ context.Context, _ []byte) (*types.DetectionSet, error) {
	return nil, ErrUnavailable
}

func (m *Model) Close() error {
	return nil
}
