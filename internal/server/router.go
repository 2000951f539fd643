package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/sessiond/internal/manager"
	"github.com/loykin/sessiond/internal/registry"
)

// Router provides embeddable HTTP handlers for the session resource manager.
// Endpoints:
//
//	POST {basePath}/register    body: {"repo_path": "...", "estimated_processes": N}
//	POST {basePath}/unregister  query or body: session_id=...
//	GET  {basePath}/status      non-throwing status snapshot
//	POST {basePath}/check       query: operation=... (enforces limits)
//	POST {basePath}/cleanup     forces a stale-session sweep
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(mgr *mng.Manager, basePath string) *Router {
	return &Router{mgr: mgr, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/register", r.handleRegister)
	group.POST("/unregister", r.handleUnregister)
	group.GET("/status", r.handleStatus)
	group.POST("/check", r.handleCheck)
	group.POST("/cleanup", r.handleCleanup)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *mng.Manager) (*http.Server, error) {
	r := NewRouter(mgr, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type registerReq struct {
	RepoPath           string `json:"repo_path"`
	EstimatedProcesses int    `json:"estimated_processes"`
}

type registerResp struct {
	SessionID string `json:"session_id"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type cleanupResp struct {
	Removed int `json:"removed"`
}

func (r *Router) handleRegister(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.RepoPath == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "repo_path required"})
		return
	}
	if !isSafeAbsPath(req.RepoPath) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid repo_path: must be absolute path without traversal"})
		return
	}
	id, err := r.mgr.RegisterSession(req.RepoPath, req.EstimatedProcesses)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, registerResp{SessionID: id})
}

func (r *Router) handleUnregister(c *gin.Context) {
	id := c.Query("session_id")
	if id == "" {
		var body registerResp
		if err := c.ShouldBindJSON(&body); err == nil {
			id = body.SessionID
		}
	}
	if id == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "session_id required"})
		return
	}
	if err := r.mgr.UnregisterSession(id); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.mgr.ResourceStatus())
}

func (r *Router) handleCheck(c *gin.Context) {
	st, err := r.mgr.CheckResourceLimits(c.Query("operation"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleCleanup(c *gin.Context) {
	removed, err := r.mgr.CleanupStaleSessions()
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, cleanupResp{Removed: removed})
}

// writeError maps domain errors to HTTP statuses: capacity refusals are
// retryable (429), hard process ceilings mean the host is overloaded (503),
// rejected inputs are 400, and everything else (persistence) is 500.
func writeError(c *gin.Context, err error) {
	var (
		sle *mng.SessionLimitError
		ple *mng.ProcessLimitError
		pte *mng.PathTraversalError
		pe  *registry.PersistError
	)
	switch {
	case errors.As(err, &sle):
		writeJSON(c, http.StatusTooManyRequests, errorResp{Error: err.Error()})
	case errors.As(err, &ple):
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Error: err.Error()})
	case errors.As(err, &pte):
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
	case errors.As(err, &pe):
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}
