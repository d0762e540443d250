//go:build !linux && !darwin

// batch_other.go: neither batched writer exists off Linux/macOS; the Simple
// writer remains the portable default.
//
// © 2025 statline authors. MIT License.

package wire

import (
	"net"

	"go.uber.org/zap"
)

// NewLinuxBatchWriter is unavailable on this platform.
func NewLinuxBatchWriter(Transport, *net.UDPAddr, string, uint32, uint16, *zap.Logger) (*BatchWriter, error) {
	return nil, ErrWriterUnavailable
}

// NewAppleBatchWriter is unavailable on this platform.
func NewAppleBatchWriter(Transport, *net.UDPAddr, string, uint32, uint16, *zap.Logger) (*BatchWriter, error) {
	return nil, ErrWriterUnavailable
}
