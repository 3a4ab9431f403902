package config

import "time"

const (
	// TEXTDOMAIN is the gettext domain for this project.
	TEXTDOMAIN = "device-scanner"

	// DefaultSocket is the per-host daemon's default IPC socket path.
	DefaultSocket = "/var/run/device-scanner.sock"

	// DefaultAggregatorBindAddress is the host part of device-aggregatord's
	// default --bind address (port 8080). The PROXY_HOST environment
	// variable is not read.
	DefaultAggregatorBindAddress = "127.0.0.1"

	// CacheTTL is how long an aggregator cache entry survives without a
	// Heartbeat or Data update.
	CacheTTL = 30 * time.Second

	// HeartbeatInterval is how often the proxy posts a Heartbeat.
	HeartbeatInterval = 10 * time.Second

	// ClientNameHeader carries the posting host's name, terminated by the
	// TLS front-end (or extracted from the client certificate).
	ClientNameHeader = "x-ssl-client-name"
)
