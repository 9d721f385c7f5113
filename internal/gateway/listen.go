// ABOUTME: Listener setup for the gateway, on plain TCP or on a tailnet node
// ABOUTME: Tailscale mode ignores server addresses and serves on fixed tailnet ports

package gateway

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/2389/whitelist-gateway/internal/config"
)

// Ports served on the tailnet node.
const (
	tailnetGRPCPort = ":50051"
	tailnetHTTPPort = ":80"
)

// listeners is the pair of sockets the gateway serves on.
type listeners struct {
	grpc net.Listener
	http net.Listener
}

func (g *Gateway) listen(ctx context.Context) (listeners, error) {
	if !g.config.Tailscale.Enabled {
		g.logger.Info("starting gateway",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
		return listenTCP(g.config.Server)
	}

	if s := g.config.Server; s.GRPCAddr != "" || s.HTTPAddr != "" {
		g.logger.Warn("tailscale enabled, server addresses ignored",
			"grpc_addr", s.GRPCAddr,
			"http_addr", s.HTTPAddr,
		)
	}
	ts, err := newTailnetNode(g.config.Tailscale)
	if err != nil {
		return listeners{}, err
	}
	return g.listenTailnet(ctx, ts)
}

func listenTCP(cfg config.ServerConfig) (listeners, error) {
	grpcLn, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return listeners{}, fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr, err)
	}
	httpLn, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return listeners{}, fmt.Errorf("http listen on %s: %w", cfg.HTTPAddr, err)
	}
	return listeners{grpc: grpcLn, http: httpLn}, nil
}

// newTailnetNode builds an unstarted tsnet node. The auth key falls back to
// TS_AUTHKEY and the state dir to ~/.local/share/whitelist-gateway/tailscale.
func newTailnetNode(cfg config.TailscaleConfig) (*tsnet.Server, error) {
	dir := cfg.StateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("tailscale.state_dir is unset and home is unknown: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "whitelist-gateway", "tailscale")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	key := cmp.Or(cfg.AuthKey, os.Getenv("TS_AUTHKEY"))
	if key == "" {
		return nil, errors.New("tailscale needs tailscale.auth_key or TS_AUTHKEY")
	}

	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       dir,
		AuthKey:   key,
		Ephemeral: cfg.Ephemeral,
	}, nil
}

// listenTailnet brings ts up and opens both listeners on it. On success the
// gateway owns ts and closes it in Shutdown.
func (g *Gateway) listenTailnet(ctx context.Context, ts *tsnet.Server) (listeners, error) {
	g.logger.Info("joining tailnet", "hostname", ts.Hostname, "state_dir", ts.Dir, "ephemeral", ts.Ephemeral)
	st, err := ts.Up(ctx)
	if err != nil {
		_ = ts.Close()
		return listeners{}, fmt.Errorf("starting tailscale node %q: %w", ts.Hostname, err)
	}

	var ip, dnsName string
	if len(st.TailscaleIPs) > 0 {
		ip = st.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailnet node has no addresses yet")
	}
	if st.Self != nil {
		dnsName = st.Self.DNSName
	}
	g.logger.Info("tailnet node up", "hostname", ts.Hostname, "ip", ip, "dns_name", dnsName)

	var l listeners
	if l.grpc, err = ts.Listen("tcp", tailnetGRPCPort); err == nil {
		if l.http, err = ts.Listen("tcp", tailnetHTTPPort); err != nil {
			_ = l.grpc.Close()
		}
	}
	if err != nil {
		_ = ts.Close()
		return listeners{}, fmt.Errorf("listening on tailnet: %w", err)
	}

	g.tsnetServer = ts
	return l, nil
}
