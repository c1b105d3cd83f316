package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// feedbackSanitizer strips markup from free-text feedback comments before
// they're persisted; this text is later rendered verbatim in dashboards.
var feedbackSanitizer = bluemonday.StrictPolicy()

type submitFeedbackRequest struct {
	MessageID   string `json:"messageId"`
	SessionID   string `json:"sessionId"`
	FeedbackType string `json:"feedbackType"`
	FeedbackText *string `json:"feedbackText"`
}

// submitFeedbackHandler handles POST /feedback (spec §6.1, 202 accepted).
func (s *Server) submitFeedbackHandler(c *echo.Context) error {
	var req submitFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if req.MessageID == "" || req.SessionID == "" {
		return writeError(c, errs.New(errs.BadRequest, "messageId and sessionId are required"))
	}

	var rating model.FeedbackRating
	switch req.FeedbackType {
	case string(model.RatingUp):
		rating = model.RatingUp
	case string(model.RatingDown):
		rating = model.RatingDown
	default:
		return writeError(c, errs.New(errs.BadRequest, "feedbackType must be up or down"))
	}

	var comment *string
	if req.FeedbackText != nil {
		clean := feedbackSanitizer.Sanitize(*req.FeedbackText)
		comment = &clean
	}

	f := &model.Feedback{
		ID:          uuid.New().String(),
		SessionID:   req.SessionID,
		TaskID:      req.MessageID,
		UserID:      extractAuthor(c),
		Rating:      rating,
		Comment:     comment,
		CreatedTime: time.Now().UnixMilli(),
	}
	if err := s.feedback.Create(c.Request().Context(), f); err != nil {
		return writeError(c, errs.Wrap(errs.Internal, "store feedback", err))
	}
	return c.NoContent(http.StatusAccepted)
}
