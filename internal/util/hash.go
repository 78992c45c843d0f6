// Package util provides logging, traffic statistics and small helpers shared
// by every syncpad package.
package util

import (
	"hash/fnv"
	"net"
)

// ClientIDFromConn computes a 4-byte hash of a connection's endpoints. It
// only labels bridge clients in logs and does not need to be reversible.
func ClientIDFromConn(conn net.Conn) uint32 {
	h := fnv.New32a()
	h.Write([]byte(conn.LocalAddr().String()))
	h.Write([]byte(conn.RemoteAddr().String()))
	return h.Sum32()
}
