package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
	"github.com/yggdrasillabs/yggdrasil/services/council"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/middleware"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/similarity"
	"github.com/yggdrasillabs/yggdrasil/services/watcher"
)

func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrBranchViolation),
		errors.Is(err, types.ErrVerificationUnsupported):
		c.JSON(http.StatusUnprocessableEntity, datatypes.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "internal error"})
	}
}

// HandleGetNode serves GET /v1/nodes/:id.
func HandleGetNode(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		node, err := l.GetNode(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, node)
	}
}

// HandleGetNodeAudit serves GET /v1/nodes/:id/audit.
func HandleGetNodeAudit(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		node, err := l.GetNode(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodeId": node.ID, "auditTrail": node.AuditTrail})
	}
}

// HandleListAlerts serves GET /v1/alerts from the watcher's in-process ring
// buffer, falling back to the persisted alerts when the buffer is empty.
func HandleListAlerts(l *ledger.Ledger, w *watcher.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts := w.Alerts().Snapshot()
		if len(alerts) == 0 {
			persisted, err := l.ListAlerts(c.Request.Context(), 100)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			alerts = persisted
		}
		c.JSON(http.StatusOK, gin.H{"alerts": alerts})
	}
}

// HandleCreateCheckpoint serves POST /v1/checkpoints.
func HandleCreateCheckpoint(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body datatypes.CheckpointRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		userID := "local-user"
		if info := middleware.GetAuthInfo(c); info != nil {
			userID = info.UserID
		}

		cp, err := l.CreateCheckpoint(c.Request.Context(), userID, body.Label, body.NodeIDs,
			ledger.CheckpointOptions{Description: body.Description})
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cp)
	}
}

// HandleRollback serves POST /v1/checkpoints/:id/rollback.
func HandleRollback(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := "local-user"
		if info := middleware.GetAuthInfo(c); info != nil {
			userID = info.UserID
		}

		result, err := l.Rollback(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleWatcherStats serves GET /v1/watcher/stats.
func HandleWatcherStats(w *watcher.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, w.Stats())
	}
}

// HandleWatcherScan serves POST /v1/watcher/scan, forcing one batch for the
// given queue (default HOT).
func HandleWatcherScan(w *watcher.Watcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		queue := types.PriorityQueue(c.DefaultQuery("queue", string(types.QueueHot)))
		outcomes, err := w.RunQueueNow(c.Request.Context(), queue)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"scanned": len(outcomes)})
	}
}

// HandleSimilarNodes serves GET /v1/nodes/similar?text=...&limit=N via the
// optional similarity collaborator. Returns empty results when similarity
// is disabled.
func HandleSimilarNodes(idx *similarity.Index) gin.HandlerFunc {
	return func(c *gin.Context) {
		text := c.Query("text")
		if text == "" {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "text query parameter required"})
			return
		}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))

		neighbors, err := idx.Similar(c.Request.Context(), text, limit)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		if neighbors == nil {
			neighbors = []similarity.Neighbor{}
		}
		c.JSON(http.StatusOK, gin.H{"neighbors": neighbors})
	}
}

// HandleDeliberationAttribution serves GET /v1/deliberations/:id/attribution:
// the stored deliberation's per-member Shapley attribution, response
// quality, challenge impact, and consensus alignment.
func HandleDeliberationAttribution(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := l.GetDeliberation(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"deliberationId": d.ID,
			"verdict":        d.Verdict,
			"attributions":   council.Attribute(d),
		})
	}
}
