//go:build darwin

// batch_darwin.go gates the platform-specific batched writers on macOS: the
// batched datagram path is available for IPv4 destinations only, the Linux
// one is not.
//
// © 2025 statline authors. MIT License.

package wire

import (
	"net"

	"go.uber.org/zap"
)

// NewAppleBatchWriter builds the vectored writer for the platform batched
// datagram path.  IPv6 destinations are rejected at construction.
func NewAppleBatchWriter(t Transport, dst *net.UDPAddr, prefix string, maxBatch uint32, maxPacket uint16, log *zap.Logger) (*BatchWriter, error) {
	if dst != nil && dst.IP.To4() == nil {
		return nil, ErrIPv6NotSupported
	}
	return newBatchWriter(t, prefix, maxBatch, maxPacket, log), nil
}

// NewLinuxBatchWriter is unavailable on macOS.
func NewLinuxBatchWriter(Transport, *net.UDPAddr, string, uint32, uint16, *zap.Logger) (*BatchWriter, error) {
	return nil, ErrWriterUnavailable
}
