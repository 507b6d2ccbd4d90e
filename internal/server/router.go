package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lamht/forwarder/internal/metrics"
	"github.com/lamht/forwarder/internal/pipeline"
	"github.com/lamht/forwarder/internal/supervisor"
)

// PipelineSource exposes the publish state.
type PipelineSource interface {
	Snapshot() pipeline.Snapshot
}

// TunnelSource exposes the supervised process state.
type TunnelSource interface {
	Status() supervisor.Status
}

// Router provides embeddable read-only HTTP handlers for the forwarder.
// Endpoints:
//   GET {basePath}/status   tunnel process and publish state
//   GET {basePath}/url      last published URL (404 when none yet)
//   GET {basePath}/healthz  200 when the tunnel process is running, else 503
//   GET /metrics            Prometheus metrics
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	pipe     PipelineSource
	tunnel   TunnelSource
	basePath string
	gatherer prometheus.Gatherer
}

// NewRouter constructs a Router. A nil gatherer serves the default registry.
func NewRouter(pipe PipelineSource, tunnel TunnelSource, basePath string, gatherer prometheus.Gatherer) *Router {
	return &Router{pipe: pipe, tunnel: tunnel, basePath: sanitizeBase(basePath), gatherer: gatherer}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/url", r.handleURL)
	group.GET("/healthz", r.handleHealth)

	mh := metrics.Handler()
	if r.gatherer != nil {
		mh = metrics.HandlerFor(r.gatherer)
	}
	g.GET("/metrics", gin.WrapH(mh))
	return g
}

// NewServer returns an http.Server for addr serving this router. The caller
// runs ListenAndServe and Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type statusResp struct {
	URL     string            `json:"url,omitempty"`
	Tunnel  supervisor.Status `json:"tunnel"`
	Publish pipeline.Snapshot `json:"publish"`
}

func (r *Router) handleStatus(c *gin.Context) {
	snap := r.pipe.Snapshot()
	writeJSON(c, http.StatusOK, statusResp{
		URL:     string(snap.LastPublished),
		Tunnel:  r.tunnel.Status(),
		Publish: snap,
	})
}

func (r *Router) handleURL(c *gin.Context) {
	snap := r.pipe.Snapshot()
	if snap.LastPublished == "" {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "no tunnel url detected yet"})
		return
	}
	resp := gin.H{"url": string(snap.LastPublished)}
	if snap.LastAttempt != nil && snap.LastAttempt.URL == snap.LastPublished {
		resp["published"] = snap.LastAttempt.OK
		resp["updatedAt"] = snap.LastAttempt.At.UnixMilli()
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleHealth(c *gin.Context) {
	st := r.tunnel.Status()
	code := http.StatusOK
	if !st.Running {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, gin.H{"ok": st.Running, "pid": st.PID})
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	bp = strings.TrimRight(bp, "/")
	return bp
}

func writeJSON(c *gin.Context, code int, v any) {
	c.Header("Content-Type", "application/json")
	c.Status(code)
	_ = json.NewEncoder(c.Writer).Encode(v)
}
