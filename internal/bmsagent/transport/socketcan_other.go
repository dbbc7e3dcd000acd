//go:build !linux

package transport

import (
	"context"
	"fmt"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

func (s *SocketCAN) Run(_ context.Context, _ chan<- core.Frame) error {
	return fmt.Errorf("socketcan %s: %w", s.iface, ErrUnsupported)
}
