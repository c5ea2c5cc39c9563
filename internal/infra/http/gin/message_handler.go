package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	msgapp "learnhub/internal/app/handlers/messages"
	"learnhub/internal/app/policies"
	"learnhub/internal/app/queries"
)

const idempotencyHeader = "Idempotency-Key"

type MessageHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id" form:"conversation_id"`
	RecipientID    string `json:"recipient_id" form:"recipient_id"`
	Content        string `json:"content" form:"content"`
}

type reactionRequest struct {
	Symbol string `json:"symbol"`
}

// Send accepts JSON for text messages and multipart/form-data when a file is attached.
func (h MessageHandler) Send(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	var upload *policies.Upload
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		fileHeader, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file"})
			return
		}
		if fileHeader != nil {
			file, err := fileHeader.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
				return
			}
			defer file.Close()
			upload = &policies.Upload{
				Filename:    fileHeader.Filename,
				ContentType: fileHeader.Header.Get("Content-Type"),
				Size:        fileHeader.Size,
				Body:        file,
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := msgapp.SendMessageCommand{
		SenderID:       user.ID,
		ConversationID: strings.TrimSpace(req.ConversationID),
		RecipientID:    strings.TrimSpace(req.RecipientID),
		Content:        req.Content,
		Upload:         upload,
		RequestKey:     strings.TrimSpace(c.GetHeader(idempotencyHeader)),
	}
	result, err := commands.Dispatch[msgapp.SendMessageCommand, dto.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h MessageHandler) Fetch(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := msgapp.FetchMessagesQuery{
		UserID:         user.ID,
		ConversationID: strings.TrimSpace(c.Param("conversationId")),
		Limit:          parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[msgapp.FetchMessagesQuery, dto.MessageList](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, "fetch messages", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h MessageHandler) MarkRead(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	cmd := msgapp.MarkMessageReadCommand{UserID: user.ID, MessageID: strings.TrimSpace(c.Param("id"))}
	result, err := commands.Dispatch[msgapp.MarkMessageReadCommand, dto.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "mark message read", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h MessageHandler) Delete(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	cmd := msgapp.DeleteMessageCommand{UserID: user.ID, MessageID: strings.TrimSpace(c.Param("id"))}
	if _, err := commands.Dispatch[msgapp.DeleteMessageCommand, dto.DeletedMessage](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, "delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h MessageHandler) React(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := msgapp.ToggleReactionCommand{UserID: user.ID, MessageID: strings.TrimSpace(c.Param("id")), Symbol: req.Symbol}
	result, err := commands.Dispatch[msgapp.ToggleReactionCommand, dto.Message](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "toggle reaction", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h MessageHandler) Search(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := msgapp.SearchMessagesQuery{
		UserID: user.ID,
		Query:  c.Query("q"),
		Limit:  parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[msgapp.SearchMessagesQuery, dto.MessageList](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, "search messages", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ MessageHTTP = MessageHandler{}
