package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yggdrasillabs/yggdrasil/services/gateway/datatypes"
	"github.com/yggdrasillabs/yggdrasil/services/gateway/observability"
	"github.com/yggdrasillabs/yggdrasil/services/pipeline"
)

// keepAliveInterval holds SSE connections open through proxies during long
// deliberation phases.
const keepAliveInterval = 15 * time.Second

// HandleQueryStream serves POST /yggdrasil/query/stream as Server-Sent
// Events. Event types: thinking, response, error; the stream terminates
// after the first response or error event.
func HandleQueryStream(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body datatypes.QueryRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "streaming unsupported"})
			return
		}

		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.ActiveStreams.Inc()
			defer observability.DefaultMetrics.ActiveStreams.Dec()
		}

		started := time.Now()
		events := p.ProcessWithStreaming(c.Request.Context(), buildRequest(body))

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				slog.Debug("stream client disconnected")
				return

			case <-keepAlive.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}

			case event, ok := <-events:
				if !ok {
					return
				}
				switch event.Kind {
				case pipeline.EventThinking:
					if err := writer.WriteEvent("thinking", event.Thinking); err != nil {
						return
					}
				case pipeline.EventResponse:
					observe("query_stream", event.Response, started)
					_ = writer.WriteEvent("response", event.Response)
					return
				case pipeline.EventError:
					observability.ObserveOutcome("query_stream", "error", time.Since(started).Seconds())
					_ = writer.WriteEvent("error", datatypes.ErrorResponse{Error: event.Error})
					return
				}
			}
		}
	}
}
