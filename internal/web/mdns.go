package web

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
)

const (
	mdnsServiceType = "_http._tcp"
	mdnsDomain      = "local."
)

// Advertise registers the control plane on the local network via
// mDNS/DNS-SD. It blocks until ctx is cancelled.
func Advertise(ctx context.Context, name string, port int, txt []string, log *zap.SugaredLogger) error {
	server, err := zeroconf.Register(name, mdnsServiceType, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	log.Infof("mdns: advertising %s on port %d", name, port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// PortFromAddr extracts the port from a listen address such as ":80".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}
