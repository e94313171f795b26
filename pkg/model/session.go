package model

import (
	"net"
	"time"
)

// Session represents an active client session (in-memory only). At most one
// session exists per username; a fresh login replaces the previous mapping.
type Session struct {
	Username      string
	Addr          *net.UDPAddr
	Channel       string
	LastHeartbeat time.Time
}
