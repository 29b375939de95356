package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
	"github.com/yggdrasillabs/yggdrasil/services/ledger"
	"github.com/yggdrasillabs/yggdrasil/services/llm"
)

// componentOK / componentDegraded / componentDown are the health states.
const (
	componentOK       = "ok"
	componentDegraded = "degraded"
	componentDown     = "down"
)

// HandleHealth serves POST /yggdrasil/health with the component map:
// ratatosk (classifier), mimir/volva/hugin (branches), thing (council),
// odin (validator), munin (ledger).
func HandleHealth(l *ledger.Ledger, registry *llm.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := map[string]string{
			"ratatosk": componentOK,
			"mimir":    componentOK,
			"volva":    componentOK,
			"hugin":    componentOK,
			"odin":     componentOK,
		}

		// The council is degraded below quorum and down with no adapters.
		available := len(registry.Available())
		switch {
		case available == 0:
			components["thing"] = componentDown
		case available < 3:
			components["thing"] = componentDegraded
		default:
			components["thing"] = componentOK
		}

		// The ledger answers a trivial lookup or is down.
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if _, err := l.ListAlerts(ctx, 1); err != nil {
			components["munin"] = componentDown
		} else {
			components["munin"] = componentOK
		}

		status := componentOK
		for _, state := range components {
			if state == componentDown {
				status = componentDown
				break
			}
			if state == componentDegraded {
				status = componentDegraded
			}
		}

		c.JSON(http.StatusOK, datatypes.HealthResponse{
			Status:     status,
			Components: components,
		})
	}
}
