package activity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/pkg/logger"
)

// NewUpgrader accepts any origin when allowAll is set, otherwise only
// same-host requests.
func NewUpgrader(allowAll bool) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if allowAll {
		u.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return u
}

// WSHandler streams events over a websocket. Mount it behind a soft auth
// gate: a caller with a valid token also gets their own private events.
func WSHandler(hub *Hub, upgrader *websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromContext(c.Request.Context())

		var userID string
		if id, ok := auth.IdentityFrom(c); ok {
			userID = id.UserID
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("ws upgrade failed")
			return
		}

		hub.AddWS(ws, userID)
		log.Info().Bool("authenticated", userID != "").Msg("ws client connected")

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.RemoveWS(ws)
		log.Info().Msg("ws client disconnected")
	}
}
