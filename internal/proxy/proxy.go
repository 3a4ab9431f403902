// Package proxy is the host-side TLS forwarder (§4.7/§6, out of scope
// per spec.md beyond its interface): it streams this host's device graph
// off the local scanner socket and relays it, plus periodic heartbeats,
// to the cluster aggregator over mTLS.
package proxy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
)

// Identity is the mutual-TLS bundle the proxy presents to the aggregator
// and the CA it trusts, each a path to a PEM file (§6 "mutual-TLS
// identity bundle, paths via env").
type Identity struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

// IdentityFromEnv reads DEVICE_SCANNER_PROXY_{CERT,KEY,CA} from the
// environment; an unset variable leaves the matching field empty.
func IdentityFromEnv() Identity {
	return Identity{
		CertFile: os.Getenv("DEVICE_SCANNER_PROXY_CERT"),
		KeyFile:  os.Getenv("DEVICE_SCANNER_PROXY_KEY"),
		CAFile:   os.Getenv("DEVICE_SCANNER_PROXY_CA"),
	}
}

// Proxy forwards one host's scanner stream to the aggregator named by
// ManagerURL (IML_MANAGER_URL, §6).
type Proxy struct {
	Socket     string
	ManagerURL string
	HostName   string
	Identity   Identity

	client *http.Client
}

// New builds a Proxy whose HTTP client presents Identity's client
// certificate and trusts its CA, mirroring the aggregator's own mTLS
// termination expectations.
func New(socket, managerURL, hostName string, id Identity) (*Proxy, error) {
	tlsCfg := &tls.Config{}

	if id.CertFile != "" && id.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(id.CertFile, id.KeyFile)
		if err != nil {
			return nil, fmt.Errorf(i18n.G("couldn't load proxy TLS identity: %v"), err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	if id.CAFile != "" {
		ca, err := os.ReadFile(id.CAFile)
		if err != nil {
			return nil, fmt.Errorf(i18n.G("couldn't read proxy CA bundle: %v"), err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf(i18n.G("no certificates found in %s"), id.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return &Proxy{
		Socket:     socket,
		ManagerURL: managerURL,
		HostName:   hostName,
		Identity:   id,
		client:     &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}},
	}, nil
}

// Run dials the local scanner socket, issues Stream, and relays every
// snapshot line as a Data POST while a parallel ticker posts Heartbeat
// every HeartbeatInterval, until ctx is canceled (§4.7).
func (p *Proxy) Run(ctx context.Context) error {
	conn, err := net.Dial("unix", p.Socket)
	if err != nil {
		return fmt.Errorf(i18n.G("couldn't connect to scanner socket %q: %v"), p.Socket, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprint(conn, "\"Stream\"\n"); err != nil {
		return fmt.Errorf(i18n.G("couldn't issue Stream command: %v"), err)
	}

	lines := make(chan string)
	readErrs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		readErrs <- scanner.Err()
	}()

	heartbeat := time.NewTicker(config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case line := <-lines:
			if err := p.postData(ctx, line); err != nil {
				log.Warningf(ctx, i18n.G("couldn't forward snapshot: %v"), err)
			}
		case <-heartbeat.C:
			if err := p.postHeartbeat(ctx); err != nil {
				log.Warningf(ctx, i18n.G("couldn't send heartbeat: %v"), err)
			}
		case err := <-readErrs:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Proxy) postData(ctx context.Context, line string) error {
	return p.post(ctx, map[string]string{"Data": line})
}

func (p *Proxy) postHeartbeat(ctx context.Context) error {
	body, err := json.Marshal("Heartbeat")
	if err != nil {
		return err
	}
	return p.doPost(ctx, body)
}

func (p *Proxy) post(ctx context.Context, tagged map[string]string) error {
	body, err := json.Marshal(tagged)
	if err != nil {
		return err
	}
	return p.doPost(ctx, body)
}

func (p *Proxy) doPost(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ManagerURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(config.ClientNameHeader, p.HostName)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf(i18n.G("aggregator replied %s"), resp.Status)
	}
	return nil
}
