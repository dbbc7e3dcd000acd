//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// Run binds a CAN_RAW socket to the interface and reads until ctx is done.
func (s *SocketCAN) Run(ctx context.Context, out chan<- core.Frame) error {
	ifi, err := net.InterfaceByName(s.iface)
	if err != nil {
		return fmt.Errorf("lookup CAN interface %s: %w", s.iface, err)
	}

	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return fmt.Errorf("open CAN socket: %w", err)
	}
	defer unix.Close(fd)

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		return fmt.Errorf("bind CAN socket to %s: %w", s.iface, err)
	}

	tv := unix.NsecToTimeval(s.readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set CAN read timeout: %w", err)
	}

	s.logger.Info("SocketCAN receiver started")
	defer s.logger.Info("SocketCAN receiver stopped")

	buf := make([]byte, canFrameSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read CAN socket: %w", err)
		}
		s.deliver(buf[:n], out)
	}
}
