// internal/api/handlers.go
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cooin-core/internal/common/errors"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/common/metrics"
	"cooin-core/internal/models"
	"cooin-core/pkg/criteria"
)

// MatchRanker is the read side of the core exposed over HTTP.
type MatchRanker interface {
	Rank(ctx context.Context, actorID, ticketID string, params models.RankParams) (*models.MatchResult, error)
}

// ConnectionManager is the write side of the core exposed over HTTP.
type ConnectionManager interface {
	Propose(ctx context.Context, actorID, receiverID string, connType models.ConnectionType, terms *models.ProposedTerms, message string) (models.Connection, error)
	Respond(ctx context.Context, actorID, connectionID, decision, message string) (models.Connection, error)
	Block(ctx context.Context, actorID, targetID string) (models.Connection, error)
	BlockConnection(ctx context.Context, actorID, connectionID string) (models.Connection, error)
	Get(ctx context.Context, actorID, connectionID string) (models.Connection, error)
	List(ctx context.Context, actorID string) ([]models.Connection, error)
}

// Handlers binds the core services to their HTTP routes.
type Handlers struct {
	ranker  MatchRanker
	manager ConnectionManager
	logger  logger.Logger
}

func NewHandlers(ranker MatchRanker, manager ConnectionManager, log logger.Logger) *Handlers {
	return &Handlers{ranker: ranker, manager: manager, logger: log}
}

func writeError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatusOf(err), errors.ToResponse(err))
}

// GetMatches handles GET /tickets/:id/matches.
func (h *Handlers) GetMatches(c *gin.Context) {
	params, err := parseRankParams(c)
	if err != nil {
		metrics.MatchRequestsTotal.WithLabelValues("error").Inc()
		writeError(c, err)
		return
	}

	result, err := h.ranker.Rank(c.Request.Context(), callerID(c), c.Param("id"), params)
	if err != nil {
		metrics.MatchRequestsTotal.WithLabelValues("error").Inc()
		writeError(c, err)
		return
	}

	metrics.MatchRequestsTotal.WithLabelValues("success").Inc()
	c.JSON(http.StatusOK, result)
}

// parseRankParams reads limit/offset/min_score, falling back to the
// documented defaults for absent values. Malformed numbers are caller
// errors, not defaults.
func parseRankParams(c *gin.Context) (models.RankParams, error) {
	params := models.DefaultRankParams()

	if raw, ok := c.GetQuery("limit"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.NewInvalidParameterError("limit", "must be an integer")
		}
		params.Limit = v
	}
	if raw, ok := c.GetQuery("offset"); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return params, errors.NewInvalidParameterError("offset", "must be an integer")
		}
		params.Offset = v
	}
	if raw, ok := c.GetQuery("min_score"); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return params, errors.NewInvalidParameterError("min_score", "must be a number")
		}
		params.MinScore = v
	}
	return params, nil
}

type proposeRequest struct {
	ReceiverID string                `json:"receiverId" binding:"required"`
	Type       models.ConnectionType `json:"type" binding:"required"`
	Terms      *models.ProposedTerms `json:"terms"`
	Message    string                `json:"message"`
}

// ProposeConnection handles POST /connections.
func (h *Handlers) ProposeConnection(c *gin.Context) {
	var req proposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.NewInvalidParameterError("body", err.Error()))
		return
	}

	conn, err := h.manager.Propose(c.Request.Context(), callerID(c), req.ReceiverID, req.Type, req.Terms, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conn)
}

type respondRequest struct {
	Decision string `json:"decision" binding:"required"`
	Message  string `json:"message"`
}

// RespondConnection handles POST /connections/:id/respond.
func (h *Handlers) RespondConnection(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.NewInvalidParameterError("body", err.Error()))
		return
	}

	conn, err := h.manager.Respond(c.Request.Context(), callerID(c), c.Param("id"), req.Decision, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

type blockRequest struct {
	TargetID     string `json:"targetId"`
	ConnectionID string `json:"connectionId"`
}

// CreateBlock handles POST /blocks. The caller names either the user to
// block or an existing connection.
func (h *Handlers) CreateBlock(c *gin.Context) {
	var req blockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errors.NewInvalidParameterError("body", err.Error()))
		return
	}

	var (
		conn models.Connection
		err  error
	)
	switch {
	case req.ConnectionID != "":
		conn, err = h.manager.BlockConnection(c.Request.Context(), callerID(c), req.ConnectionID)
	case req.TargetID != "":
		conn, err = h.manager.Block(c.Request.Context(), callerID(c), req.TargetID)
	default:
		err = errors.NewInvalidParameterError("body", "targetId or connectionId is required")
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// GetConnection handles GET /connections/:id.
func (h *Handlers) GetConnection(c *gin.Context) {
	conn, err := h.manager.Get(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conn)
}

// ListConnections handles GET /connections.
func (h *Handlers) ListConnections(c *gin.Context) {
	conns, err := h.manager.List(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if conns == nil {
		conns = []models.Connection{}
	}
	c.JSON(http.StatusOK, gin.H{"connections": conns})
}

// ListCriteria handles GET /criteria: the static scoring catalog, useful
// for clients rendering score breakdowns.
func (h *Handlers) ListCriteria(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"criteria": criteria.Catalog})
}
