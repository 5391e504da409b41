package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/udit2303/sitegossip/pkg/announce"
	"github.com/udit2303/sitegossip/pkg/metrics"
	"github.com/udit2303/sitegossip/pkg/node"
	"github.com/udit2303/sitegossip/pkg/util"
)

var (
	log = util.DefaultLogger()
)

// siteName returns the positional override, or the host name.
func siteName(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("no site name given and host name unavailable: %w", err)
	}
	return host, nil
}

func splitPeers(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	port := flag.Int("port", 0, "Port to listen on for gossip links (0 picks one)")
	network := flag.String("network", node.DefaultNetwork, "Network slug; only nodes with the same slug link up")
	topic := flag.String("topic", node.DefaultTopic, "Gossip topic for site announcements")
	interval := flag.Duration("interval", announce.DefaultInterval, "Time between site announcements")
	connect := flag.String("connect", "", "Comma separated ip:port list of peers to dial directly")
	mdns := flag.Bool("mdns", true, "Discover peers on the local network with mDNS")
	chat := flag.Bool("chat", false, "Broadcast lines typed on stdin as notifications")
	metricsAddr := flag.String("metrics", "", "Serve prometheus metrics on this address, e.g. :9100")
	stunCheck := flag.Bool("stun", true, "Log the public address as seen by a STUN server at startup")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [site-name]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		log = util.NewLogger(os.Stdout, util.DebugLevel)
	}

	name, err := siteName(flag.Args())
	if err != nil {
		log.Fatal("Cannot determine site name", "error", err)
	}
	log = log.With("port", *port)

	if localIPs, err := util.GetLocalIPs(); err == nil {
		log.Info("Local IPv4 addresses", "ips", localIPs)
	} else {
		log.Warn("Unable to get local IPs", "error", err)
	}
	if *stunCheck {
		if pubIP, pubPort, err := util.GetPublicIP("", 3*time.Second); err == nil {
			log.Info("Public internet address (via STUN)", "ip", pubIP, "port", pubPort)
		} else {
			log.Warn("Unable to determine public IP (STUN)", "error", err)
		}
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("Serving metrics", "address", *metricsAddr)
	}

	cfg := node.Config{
		SiteName:   name,
		Network:    *network,
		Topic:      *topic,
		ListenAddr: fmt.Sprintf(":%d", *port),
		Peers:      splitPeers(*connect),
		MDNS:       *mdns,
		Interval:   *interval,
		Log:        log,
		Metrics:    m,
	}
	if *chat {
		cfg.Chat = os.Stdin
	}

	n, err := node.New(cfg)
	if err != nil {
		log.Fatal("Failed to start node", "error", err)
	}
	log.Info("Gossip listener ready", "address", n.Addr())

	if err := n.Run(ctx); err != nil {
		log.Error("Node stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Shutting down...")
}
