// Package aggregator wires the TTL cache (internal/cache) and cross-host
// DAG builder (internal/crosshostdag) into the HTTP ingress described in
// §4.7: POST receives each host proxy's Heartbeat/Data, GET exposes the
// merged per-host snapshot map, and GET /graphviz renders the current DAG
// for debugging.
package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/ubuntu/device-scanner/internal/cache"
	"github.com/ubuntu/device-scanner/internal/config"
	"github.com/ubuntu/device-scanner/internal/crosshostdag"
	"github.com/ubuntu/device-scanner/internal/deverr"
	"github.com/ubuntu/device-scanner/internal/device"
	"github.com/ubuntu/device-scanner/internal/i18n"
	"github.com/ubuntu/device-scanner/internal/log"
)

// Server holds the aggregator's mutable collaborators: the TTL cache
// every POST mutates, and the cross-host DAG every GET/graphviz request
// reads. The DAG is rebuilt synchronously after every accepted Data
// update; concurrent readers see either the old or the new one, never a
// partially-built graph.
type Server struct {
	cache *cache.Cache

	mu  sync.RWMutex
	dag *crosshostdag.Dag
}

// New returns a Server backed by c.
func New(c *cache.Cache) *Server {
	return &Server{cache: c, dag: crosshostdag.New()}
}

// Router builds the gin engine exposing §4.7's three endpoints.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/", s.handleGet)
	r.POST("/", s.handlePost)
	r.GET("/graphviz", s.handleGraphviz)
	return r
}

// handleGet implements `GET /`: 200 with {<host>: <Device>, ...}.
func (s *Server) handleGet(c *gin.Context) {
	s.cache.Flush()
	c.JSON(http.StatusOK, s.cache.Entries())
}

// handleGraphviz implements the optional debug `GET /graphviz`.
func (s *Server) handleGraphviz(c *gin.Context) {
	s.cache.Flush()
	s.mu.RLock()
	dag := s.dag
	s.mu.RUnlock()
	c.String(http.StatusOK, dag.DOT())
}

// handlePost implements `POST /`: parses the body as a Message and either
// resets the posting host's TTL (Heartbeat) or upserts its snapshot and
// rebuilds the DAG (Data), per §4.7.
func (s *Server) handlePost(c *gin.Context) {
	s.cache.Flush()

	host := c.GetHeader(config.ClientNameHeader)
	if host == "" {
		c.String(http.StatusBadRequest, i18n.G("missing %s header"), config.ClientNameHeader)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, i18n.G("couldn't read request body: %v"), err)
		return
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		c.String(statusFor(err), i18n.G("malformed message: %v"), err)
		return
	}

	if msg.Heartbeat {
		s.cache.Reset(host)
		c.Status(http.StatusCreated)
		return
	}

	var tree device.Device
	if err := json.Unmarshal([]byte(msg.Data), &tree); err != nil {
		c.String(http.StatusBadRequest, i18n.G("malformed device tree: %v"), err)
		return
	}

	if prev, ok := s.cache.Get(host); ok && reflect.DeepEqual(prev, tree) {
		// Unchanged snapshot: reply without recomputing (§4.7 step 3).
		c.Status(http.StatusCreated)
		return
	}

	s.cache.Upsert(host, tree)
	s.rebuild()
	c.Status(http.StatusCreated)
}

// rebuild re-derives the cross-host DAG from the cache's current entries.
func (s *Server) rebuild() {
	entries := s.cache.Entries()
	dag := crosshostdag.BuildFromHosts(entries)

	s.mu.Lock()
	s.dag = dag
	s.mu.Unlock()
}

// Records returns the current (device, hosts, active) record set derived
// from the last-built DAG (§4.6 phase 4).
func (s *Server) Records() []crosshostdag.Record {
	s.mu.RLock()
	dag := s.dag
	s.mu.RUnlock()

	return crosshostdag.DeriveRecords(dag, func(d device.Device) {
		log.Debugf(context.Background(), i18n.G("eliding device with no resolvable host set: %+v"), d)
	})
}

// statusFor maps the internal error taxonomy to an HTTP status, restoring
// the original's aggregator_error.rs kind->status mapping (Parse → 400,
// PoolNotFound/ZfsNotFound → 404, everything else → 500).
func statusFor(err error) int {
	switch {
	case errors.Is(err, deverr.ErrParse):
		return http.StatusBadRequest
	case errors.Is(err, deverr.ErrPoolNotFound), errors.Is(err, deverr.ErrZfsNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
