//go:build !linux

package kernelsrc

import (
	"fmt"
	"os"
	"runtime"

	"flowwatch/internal/model"
)

// Source is never constructed off Linux.
type Source struct{}

// Open always fails off Linux.
func Open(cfg Config) (*Source, error) {
	return nil, fmt.Errorf("%w: not supported on %s", ErrUnavailable, runtime.GOOS)
}

func (s *Source) Next() (model.RawEvent, error) {
	return model.RawEvent{}, os.ErrClosed
}

func (s *Source) Close() error { return nil }
