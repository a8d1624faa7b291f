package controller

import (
	"net/http"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"
	"github/itish2003/agriqa/services"

	"github.com/gin-gonic/gin"
)

// QAController serves the question answering endpoints. Every route expects
// RequireAuth to have stored the caller's user id.
type QAController struct {
	log *logger.Logger
	qa  services.QAService
}

func NewQAController(log *logger.Logger, qa services.QAService) *QAController {
	return &QAController{log: log.With("controller", "QAController"), qa: qa}
}

// Ask is the handler for POST /qa/ask. The answer is streamed as
// server-sent events; failures after the headers are sent arrive as an
// error frame.
func (c *QAController) Ask(ctx *gin.Context) {
	var req models.AskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	userID := ctx.GetString(ContextUserID)

	ctx.Header("Content-Type", "text/event-stream; charset=utf-8")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Status(http.StatusOK)

	for frame := range c.qa.AnswerStream(ctx.Request.Context(), req.Question, userID) {
		if err := services.EncodeSSE(ctx.Writer, frame); err != nil {
			c.log.Warn("client disconnected during stream", "user_id", userID, "error", err)
			return
		}
		ctx.Writer.Flush()
	}
}

func (c *QAController) History(ctx *gin.Context) {
	items, err := c.qa.GetChatHistory(ctx.Request.Context(), ctx.GetString(ContextUserID))
	if err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, items)
}

func (c *QAController) ClearContext(ctx *gin.Context) {
	if err := c.qa.ClearContext(ctx.Request.Context(), ctx.GetString(ContextUserID)); err != nil {
		respondError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, models.MessageResponse{Message: "conversation context cleared"})
}
