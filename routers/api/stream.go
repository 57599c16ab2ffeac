package api

import (
	"net/http"

	"storylab-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamScene upgrades to a websocket, reads one scene request and relays
// the generation fragments as they arrive. The final message carries the
// IALog; the streamed draft is not persisted.
func (h *Handlers) StreamScene(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	var req service.SceneRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Header == "" || req.Context == "" || req.Goal == "" || req.ScreenplayID == "" {
		_ = conn.WriteJSON(gin.H{"error": "header, context, goal and screenplay_id are required"})
		return
	}

	me := currentUser(c)
	content, ia, err := h.Orch.GenerateSceneStream(c.Request.Context(), me.ID, req, func(fragment string) error {
		return conn.WriteJSON(gin.H{"fragment": fragment})
	})
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": err.Error()})
		return
	}
	_ = conn.WriteJSON(gin.H{"done": true, "content": content, "iaLog": ia})
}
