// Package api exposes the join engine over HTTP: submit a join tree plus
// its tables as JSON, evaluate it, retrieve the result and the run's audit
// record, and subscribe to phase-progress broadcasts over websocket.
package api

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/oblivious-band-join/internal/db"
	"github.com/rawblock/oblivious-band-join/internal/engine"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/internal/shadow"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// APIHandler holds the dependencies every request handler needs: the
// engine that evaluates submitted join trees, the optional audit store,
// and the websocket hub that broadcasts phase-completion events.
type APIHandler struct {
	eng     *engine.Engine
	store   *db.PostgresStore
	wsHub   *Hub
	limiter *JoinRateLimiter
}

// SetupRouter builds the gin.Engine for the join service. store may be nil
// (runs are still evaluated, just not persisted).
func SetupRouter(eng *engine.Engine, store *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS env var, same shape as the
	// rest of this module's env-driven, no-flags-package configuration.
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{eng: eng, store: store, wsHub: wsHub, limiter: NewJoinRateLimiter(30, 5)}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	{
		// Join evaluation is CPU-bound and its cost scales with tree size,
		// so the submission endpoint charges the limiter per node rather
		// than the flat per-request cost the read endpoints use.
		auth.POST("/joins", handler.handleSubmitJoin)

		reads := auth.Group("")
		reads.Use(handler.limiter.Middleware())
		{
			reads.GET("/joins/:id", handler.handleGetJoinRun)
			reads.GET("/runs", handler.handleListRuns)
		}
	}

	return r
}

// rowRequest is the wire shape of one input tuple: the join column value,
// a stable identity within its table, and the payload attributes.
type rowRequest struct {
	JoinAttr      int64   `json:"joinAttr"`
	OriginalIndex int64   `json:"originalIndex"`
	Attributes    []int64 `json:"attributes"`
}

// constraintRequest is the wire shape of a join constraint to a node's
// parent (spec §3): for parent value v, the child's matching interval is
// [v+deltaStart, v+deltaEnd], each endpoint closed iff its eq is "EQ".
type constraintRequest struct {
	DeltaStart int64  `json:"deltaStart"`
	EqStart    string `json:"eqStart"`
	DeltaEnd   int64  `json:"deltaEnd"`
	EqEnd      string `json:"eqEnd"`
}

// nodeRequest is one node of the submitted join tree. Node 0 must be the
// root (Parent nil); every other node's Parent must name an
// already-declared node index, so the submitted order is always a valid
// arena build order for jointree.Tree.
type nodeRequest struct {
	Name       string             `json:"name"`
	Schema     []string           `json:"schema"`
	Rows       []rowRequest       `json:"rows"`
	Parent     *int               `json:"parent,omitempty"`
	Constraint *constraintRequest `json:"constraint,omitempty"`
}

type joinRequest struct {
	Nodes         []nodeRequest `json:"nodes"`
	ShadowCompare bool          `json:"shadowCompare"`
	SnapshotID    int64         `json:"snapshotId"`
}

type rowResponse struct {
	JoinAttr   int64   `json:"joinAttr"`
	Attributes []int64 `json:"attributes"`
}

func parseEquality(s string) (tuple.EqualityType, error) {
	switch strings.ToUpper(s) {
	case "EQ":
		return tuple.EqEQ, nil
	case "NEQ":
		return tuple.EqNEQ, nil
	case "", "NONE":
		return tuple.EqNone, nil
	default:
		return tuple.EqNone, fmt.Errorf("invalid equality type %q, want EQ or NEQ", s)
	}
}

// buildTree converts the wire request into a jointree.Tree. Every
// attribute slot beyond MaxAttributes is rejected up front rather than
// silently truncated.
func buildTree(req joinRequest) (*jointree.Tree, error) {
	if len(req.Nodes) == 0 {
		return nil, fmt.Errorf("at least one node (the root) is required")
	}
	tree := jointree.New()
	for i, n := range req.Nodes {
		table := tuple.NewTable(n.Name, n.Schema)
		for _, r := range n.Rows {
			if len(r.Attributes) > tuple.MaxAttributes {
				return nil, fmt.Errorf("node %d: row has %d attributes, max is %d", i, len(r.Attributes), tuple.MaxAttributes)
			}
			t := tuple.Tuple{
				FieldType:     tuple.Source,
				JoinAttr:      r.JoinAttr,
				OriginalIndex: r.OriginalIndex,
				LocalMult:     1,
			}
			copy(t.Attributes[:], r.Attributes)
			table.Append(t)
		}

		if i == 0 {
			if n.Parent != nil {
				return nil, fmt.Errorf("node 0 (the root) must not declare a parent")
			}
			if _, err := tree.AddRoot(table); err != nil {
				return nil, err
			}
			continue
		}
		if n.Parent == nil {
			return nil, fmt.Errorf("node %d: non-root nodes must declare a parent index", i)
		}
		if *n.Parent < 0 || *n.Parent >= i {
			return nil, fmt.Errorf("node %d: parent index %d must refer to an earlier node", i, *n.Parent)
		}
		if n.Constraint == nil {
			return nil, fmt.Errorf("node %d: non-root nodes must declare a join constraint", i)
		}
		eqStart, err := parseEquality(n.Constraint.EqStart)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		eqEnd, err := parseEquality(n.Constraint.EqEnd)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		constraint := jointree.Constraint{
			DeltaStart: n.Constraint.DeltaStart,
			EqStart:    eqStart,
			DeltaEnd:   n.Constraint.DeltaEnd,
			EqEnd:      eqEnd,
		}
		if _, err := tree.AddChild(jointree.NodeID(*n.Parent), table, constraint); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// handleSubmitJoin evaluates a join tree and returns its result. The run
// is recorded in the audit log before and after evaluation so a crash
// mid-run is visible as a stuck "running" row rather than silently absent.
func (h *APIHandler) handleSubmitJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	tree, err := buildTree(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if allowed, retryAfter := h.limiter.ChargeSubmission(c.ClientIP(), tree.Len()); !allowed {
		c.Header("Retry-After", retryAfter.String())
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "join submission rate limit exceeded",
			"retryAfter": retryAfter.String(),
		})
		return
	}

	runID := uuid.NewString()
	submittedAt := time.Now()
	ctx := c.Request.Context()

	if h.store != nil {
		run := db.JoinRun{ID: runID, SnapshotID: req.SnapshotID, Status: "running", NodeCount: tree.Len(), SubmittedAt: submittedAt}
		if err := h.store.SaveJoinRun(ctx, run); err != nil {
			log.Printf("failed to record join run start: %v", err)
		}
	}
	if h.wsHub != nil {
		h.wsHub.Broadcast(runID, progressEvent(runID, "started", 0))
	}

	result, err := h.eng.Evaluate(tree)
	completedAt := time.Now()

	if err != nil {
		if h.store != nil {
			run := db.JoinRun{ID: runID, SnapshotID: req.SnapshotID, Status: "failed", NodeCount: tree.Len(), ErrorMessage: err.Error(), SubmittedAt: submittedAt, CompletedAt: &completedAt}
			if saveErr := h.store.SaveJoinRun(ctx, run); saveErr != nil {
				log.Printf("failed to record join run failure: %v", saveErr)
			}
		}
		if h.wsHub != nil {
			h.wsHub.Broadcast(runID, progressEvent(runID, "failed", 0))
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"runId": runID, "error": err.Error()})
		return
	}

	if h.store != nil {
		run := db.JoinRun{ID: runID, SnapshotID: req.SnapshotID, Status: "completed", NodeCount: tree.Len(), RowCount: result.Len(), SubmittedAt: submittedAt, CompletedAt: &completedAt}
		if err := h.store.SaveJoinRun(ctx, run); err != nil {
			log.Printf("failed to record join run completion: %v", err)
		}
	}
	if h.wsHub != nil {
		h.wsHub.Broadcast(runID, progressEvent(runID, "completed", result.Len()))
	}

	resp := gin.H{
		"runId":    runID,
		"status":   "completed",
		"schema":   result.Schema(),
		"rowCount": result.Len(),
		"rows":     toRowResponses(result),
	}

	if req.ShadowCompare && h.store != nil {
		// The reference join re-walks the whole tree with plain nested-loop
		// backtracking; it's run best-effort and never blocks the
		// oblivious result from being returned.
		runner := shadow.NewShadowRunner(h.store.GetPool(), req.SnapshotID, h.eng)
		div, shadowErr := runner.RunShadowAnalysis(ctx, runID, tree)
		if shadowErr != nil {
			log.Printf("shadow comparison failed for run %s: %v", runID, shadowErr)
		} else {
			resp["shadow"] = div
		}
	}

	c.JSON(http.StatusOK, resp)
}

func toRowResponses(t *tuple.Table) []rowResponse {
	rows := t.Rows()
	out := make([]rowResponse, len(rows))
	width := len(t.Schema())
	if width == 0 || width > tuple.MaxAttributes {
		width = tuple.MaxAttributes
	}
	for i, r := range rows {
		out[i] = rowResponse{JoinAttr: r.JoinAttr, Attributes: append([]int64(nil), r.Attributes[:width]...)}
	}
	return out
}

func progressEvent(runID, phase string, rowCount int) []byte {
	// Marshaled manually to avoid a dependency on encoding/json for a
	// three-field payload that never changes shape.
	return []byte(fmt.Sprintf(`{"type":"join_progress","runId":%q,"phase":%q,"rowCount":%d}`, runID, phase, rowCount))
}

// handleGetJoinRun fetches the audit record for a previously submitted run.
func (h *APIHandler) handleGetJoinRun(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not connected"})
		return
	}
	run, err := h.store.GetJoinRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// handleListRuns returns the most recently submitted join runs.
func (h *APIHandler) handleListRuns(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit store not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := h.store.GetRecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch runs", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs, "limit": limit})
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "operational",
		"engine":      "oblivious-band-join",
		"dbConnected": h.store != nil,
	})
}
