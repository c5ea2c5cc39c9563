package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"learnhub/internal/app/commands"
	"learnhub/internal/app/dto"
	convapp "learnhub/internal/app/handlers/conversations"
	"learnhub/internal/app/queries"
)

type ConversationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createConversationRequest struct {
	ParticipantIDs []string        `json:"participant_ids"`
	Context        *dto.ContextRef `json:"context"`
}

type updateConversationRequest struct {
	Archived *bool `json:"archived"`
	Deleted  *bool `json:"deleted"`
	Favorite *bool `json:"favorite"`
}

func (h ConversationHandler) Create(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := convapp.CreateConversationCommand{
		RequesterID:    user.ID,
		ParticipantIDs: req.ParticipantIDs,
		Context:        req.Context,
	}
	result, err := commands.Dispatch[convapp.CreateConversationCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "create conversation", err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (h ConversationHandler) List(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := convapp.ListConversationsQuery{UserID: user.ID, Filter: strings.TrimSpace(c.Query("filter"))}
	result, err := queries.Ask[convapp.ListConversationsQuery, dto.ConversationList](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, "list conversations", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ConversationHandler) Get(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := convapp.GetConversationQuery{UserID: user.ID, ConversationID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[convapp.GetConversationQuery, dto.Conversation](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, "get conversation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ConversationHandler) Update(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	var req updateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cmd := convapp.UpdateConversationCommand{
		UserID:         user.ID,
		ConversationID: strings.TrimSpace(c.Param("id")),
		Archived:       req.Archived,
		Deleted:        req.Deleted,
		Favorite:       req.Favorite,
	}
	result, err := commands.Dispatch[convapp.UpdateConversationCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "update conversation", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ConversationHandler) Delete(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	cmd := convapp.DeleteConversationCommand{UserID: user.ID, ConversationID: strings.TrimSpace(c.Param("id"))}
	if _, err := commands.Dispatch[convapp.DeleteConversationCommand, dto.Conversation](c.Request.Context(), h.Commands, cmd); err != nil {
		respondError(c, h.Logger, "delete conversation", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ConversationHandler) SearchUsers(c *gin.Context) {
	user, ok := requirePrincipal(c)
	if !ok {
		return
	}
	q := convapp.SearchUsersQuery{
		UserID: user.ID,
		Query:  c.Query("q"),
		Limit:  parsePositiveInt(c.Query("limit"), 0),
	}
	result, err := queries.Ask[convapp.SearchUsersQuery, []dto.ProfileSummary](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, "search users", err)
		return
	}
	if result == nil {
		result = []dto.ProfileSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

var _ ConversationHTTP = ConversationHandler{}
