//go:build !cuda && !hip

package gpu

import "github.com/pkg/errors"

// Native returns an error: this binary was built without a GPU back-end.
func Native() (Runtime, error) {
	return nil, errors.New("gpu: built without a GPU back-end, build with -tags cuda or -tags hip")
}
