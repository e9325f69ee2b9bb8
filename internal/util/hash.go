// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
	"net"
	"sync/atomic"
)

var fallbackID atomic.Uint32

// ConnID computes a 4-byte hash from a connection's endpoints (local and
// remote address). The hash is used solely for log identification and does
// not need to be reversible. Without addresses a process-wide counter is used.
func ConnID(local, remote net.Addr) uint32 {
	if local == nil || remote == nil {
		return fallbackID.Add(1)
	}

	h := fnv.New32a()
	h.Write([]byte(local.String()))
	h.Write([]byte(remote.String()))
	return h.Sum32()
}
