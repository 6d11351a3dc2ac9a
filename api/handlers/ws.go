package handlers

import (
	"net/http"

	"socialclient/api/middleware"
	"socialclient/logger"
	"socialclient/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSNoticesHandler streams notices and navigation requests to a UI served
// from one of the allowed origins.
func WSNoticesHandler(allowedOrigins []string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return middleware.OriginAllowed(allowedOrigins, r)
		},
	}
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		hub.Add(conn)
		defer hub.Remove(conn)

		if err := hub.Send(conn, services.PushMessage{Event: "connected"}); err != nil {
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				logger.Log.Debug("websocket closed", zap.Error(err))
				break
			}
		}
	}
}
