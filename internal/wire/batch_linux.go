//go:build linux

// batch_linux.go gates the platform-specific batched writers on Linux: the
// sendmmsg-backed writer is available, the Apple one is not.
//
// © 2025 statline authors. MIT License.

package wire

import (
	"net"

	"go.uber.org/zap"
)

// NewLinuxBatchWriter builds the vectored writer whose Flush submits the
// whole transmit queue in a single sendmmsg call.
func NewLinuxBatchWriter(t Transport, _ *net.UDPAddr, prefix string, maxBatch uint32, maxPacket uint16, log *zap.Logger) (*BatchWriter, error) {
	return newBatchWriter(t, prefix, maxBatch, maxPacket, log), nil
}

// NewAppleBatchWriter is unavailable on Linux.
func NewAppleBatchWriter(Transport, *net.UDPAddr, string, uint32, uint16, *zap.Logger) (*BatchWriter, error) {
	return nil, ErrWriterUnavailable
}
