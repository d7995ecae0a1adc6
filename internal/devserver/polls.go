package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"pollctl/internal/auth"
	"pollctl/internal/models"
	"pollctl/pkg/protocol"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Server) ListPolls(c *gin.Context) {
	userID, authed := currentUser(c)

	q := s.db.Preload("CreatedBy").Preload("Choices", orderChoices).Order("created_at DESC")
	if c.Query("owner") == "true" {
		if !authed {
			abortError(c, http.StatusUnauthorized, protocol.ErrorCodeUnauthorized, "Authentication required")
			return
		}
		q = q.Where("created_by_id = ?", userID)
	} else if authed {
		q = q.Where("is_public = ? OR created_by_id = ?", true, userID)
	} else {
		q = q.Where("is_public = ?", true)
	}

	var polls []models.Poll
	if err := q.Find(&polls).Error; err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}

	out := make([]protocol.Poll, 0, len(polls))
	for i := range polls {
		p := &polls[i]
		s.refreshStatus(p)
		results, err := s.results(s.db, p.ID)
		if err != nil {
			abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
			return
		}
		out = append(out, toPoll(p, results, nil))
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) GetPoll(c *gin.Context) {
	poll, ok := s.loadPoll(c)
	if !ok {
		return
	}
	s.refreshStatus(poll)

	results, err := s.results(s.db, poll.ID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}

	var tokens []string
	if userID, ok := currentUser(c); ok && userID == poll.CreatedByID && poll.VotingMode == protocol.ModeRestricted {
		tokens, err = s.tokens(poll.ID)
		if err != nil {
			abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
			return
		}
	}

	c.JSON(http.StatusOK, toPoll(poll, results, tokens))
}

func (s *Server) CreatePoll(c *gin.Context) {
	userID, _ := currentUser(c)

	var req protocol.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "title is required")
		return
	}
	if req.VotingMode == "" {
		req.VotingMode = protocol.ModeOpen
	}
	if !protocol.ValidMode(req.VotingMode) {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "voting_mode must be open or restricted")
		return
	}

	var choices []models.Choice
	for _, in := range req.Choices {
		text := strings.TrimSpace(in.Text)
		if text == "" {
			continue
		}
		choices = append(choices, models.Choice{Text: text, Position: in.Order})
	}
	if len(choices) < 2 {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "A poll must have at least two choices")
		return
	}

	now := s.Now()
	startsAt := now
	if req.StartsAt != nil {
		startsAt = *req.StartsAt
	}
	endsAt := startsAt.Add(s.DefaultWindow)
	if req.EndsAt != nil {
		endsAt = *req.EndsAt
	}
	if !startsAt.Before(endsAt) {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Poll end time must be after start time")
		return
	}

	poll := models.Poll{
		PublicID:    uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		CreatedByID: userID,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		IsPublic:    req.IsPublic,
		VotingMode:  req.VotingMode,
		Choices:     choices,
	}
	poll.Status = statusAt(&poll, now)

	if err := s.db.Create(&poll).Error; err != nil {
		log.Printf("Failed to create poll: %v", err)
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to create poll")
		return
	}

	created, err := s.findPoll(poll.PublicID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}

	c.JSON(http.StatusCreated, toPoll(created, map[int64]int64{}, nil))
}

func (s *Server) Vote(c *gin.Context) {
	poll, ok := s.loadPoll(c)
	if !ok {
		return
	}
	s.refreshStatus(poll)

	if poll.Status != protocol.StatusOpen {
		abortError(c, http.StatusForbidden, protocol.ErrorCodePollClosed, "Poll is not open for voting")
		return
	}

	var req protocol.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Invalid JSON")
		return
	}
	if req.ChoiceID == 0 {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "choice_id is required")
		return
	}

	token := req.VoterToken
	if token == "" {
		// Signed-in users may vote on open polls without a token
		if userID, ok := currentUser(c); ok && poll.VotingMode == protocol.ModeOpen {
			token = fmt.Sprintf("user:%d", userID)
		} else {
			abortError(c, http.StatusBadRequest, protocol.ErrorCodeMissingToken, "voter_token is required")
			return
		}
	}

	if !hasChoice(poll, req.ChoiceID) {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeInvalidChoice, "Invalid choice")
		return
	}

	s.voteMu.Lock()
	results, rej, err := s.castVote(poll, uint(req.ChoiceID), token)
	s.voteMu.Unlock()
	if err != nil {
		log.Printf("Failed to record vote on poll %s: %v", poll.PublicID, err)
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to record vote")
		return
	}
	if rej != nil {
		abortError(c, http.StatusBadRequest, rej.code, rej.msg)
		return
	}

	s.hub.Broadcast(poll.PublicID, results)

	c.JSON(http.StatusOK, protocol.VoteResponse{
		Message: "Vote recorded",
		Results: results,
	})
}

type rejection struct {
	code protocol.ErrorCode
	msg  string
}

func (r *rejection) Error() string { return r.msg }

// castVote records the vote and returns the new tally, or the reason the
// vote was refused.
func (s *Server) castVote(poll *models.Poll, choiceID uint, token string) (map[int64]int64, *rejection, error) {
	hash := auth.HashToken(token)
	var results map[int64]int64

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if poll.VotingMode == protocol.ModeRestricted {
			var allowed int64
			if err := tx.Model(&models.VoterToken{}).
				Where("poll_id = ? AND token_hash = ?", poll.ID, hash).
				Count(&allowed).Error; err != nil {
				return err
			}
			if allowed == 0 {
				return &rejection{protocol.ErrorCodeInvalidToken, "Invalid or unauthorized token"}
			}
		}

		var used int64
		if err := tx.Model(&models.Voter{}).
			Where("poll_id = ? AND token_hash = ?", poll.ID, hash).
			Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			if poll.VotingMode == protocol.ModeRestricted {
				return &rejection{protocol.ErrorCodeTokenUsed, "Token already used"}
			}
			return &rejection{protocol.ErrorCodeAlreadyVoted, "Already voted"}
		}

		if err := tx.Create(&models.Voter{PollID: poll.ID, TokenHash: hash, CreatedAt: s.Now()}).Error; err != nil {
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "poll_id"}, {Name: "choice_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("vote_counts.count + 1")}),
		}).Create(&models.VoteCount{PollID: poll.ID, ChoiceID: choiceID, Count: 1}).Error; err != nil {
			return err
		}

		var err error
		results, err = s.results(tx, poll.ID)
		return err
	})

	var rej *rejection
	if errors.As(err, &rej) {
		return nil, rej, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return results, nil, nil
}

func (s *Server) GenerateTokens(c *gin.Context) {
	poll, ok := s.loadOwnedPoll(c)
	if !ok {
		return
	}

	var req protocol.TokensRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Count <= 0 {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Valid token count required")
		return
	}
	if poll.VotingMode != protocol.ModeRestricted {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Poll is not in restricted mode")
		return
	}

	tokens, err := auth.GenerateVoterTokens(req.Count)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to generate tokens")
		return
	}

	rows := make([]models.VoterToken, len(tokens))
	for i, t := range tokens {
		rows[i] = models.VoterToken{
			PollID:      poll.ID,
			TokenString: t,
			TokenHash:   auth.HashToken(t),
			CreatedAt:   s.Now(),
		}
	}
	if err := s.db.Create(&rows).Error; err != nil {
		log.Printf("Failed to store tokens for poll %s: %v", poll.PublicID, err)
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to store tokens")
		return
	}

	c.JSON(http.StatusCreated, protocol.TokensResponse{
		PollPublicID: poll.PublicID,
		PollLink:     pollLink(poll.PublicID),
		Tokens:       tokens,
		Message:      "Tokens generated successfully",
	})
}

func (s *Server) GetTokens(c *gin.Context) {
	poll, ok := s.loadOwnedPoll(c)
	if !ok {
		return
	}

	tokens, err := s.tokens(poll.ID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}

	c.JSON(http.StatusOK, protocol.TokensResponse{
		PollPublicID: poll.PublicID,
		PollLink:     pollLink(poll.PublicID),
		Tokens:       tokens,
	})
}

func (s *Server) FinalizePoll(c *gin.Context) {
	poll, ok := s.loadOwnedPoll(c)
	if !ok {
		return
	}
	s.refreshStatus(poll)

	if poll.Status != protocol.StatusClosed {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Poll is not yet closed")
		return
	}

	var existing int64
	if err := s.db.Model(&models.PollResult{}).Where("poll_id = ?", poll.ID).Count(&existing).Error; err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}
	if existing > 0 {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Poll already finalized")
		return
	}

	results, err := s.results(s.db, poll.ID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}

	var total int64
	for _, n := range results {
		total += n
	}
	encoded, _ := json.Marshal(results)
	if err := s.db.Create(&models.PollResult{
		PollID:      poll.ID,
		Results:     string(encoded),
		TotalVotes:  total,
		FinalizedAt: s.Now(),
	}).Error; err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to finalize poll")
		return
	}

	c.JSON(http.StatusOK, toPoll(poll, results, nil))
}

func (s *Server) DeletePoll(c *gin.Context) {
	poll, ok := s.loadOwnedPoll(c)
	if !ok {
		return
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.Choice{}, &models.VoteCount{}, &models.Voter{},
			&models.VoterToken{}, &models.PollResult{},
		} {
			if err := tx.Where("poll_id = ?", poll.ID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Delete(&models.Poll{}, poll.ID).Error
	})
	if err != nil {
		log.Printf("Failed to delete poll %s: %v", poll.PublicID, err)
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to delete poll")
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) loadPoll(c *gin.Context) (*models.Poll, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		abortError(c, http.StatusNotFound, protocol.ErrorCodeNotFound, "Poll not found")
		return nil, false
	}

	poll, err := s.findPoll(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusNotFound, protocol.ErrorCodeNotFound, "Poll not found")
		return nil, false
	}
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return nil, false
	}
	return poll, true
}

func (s *Server) loadOwnedPoll(c *gin.Context) (*models.Poll, bool) {
	poll, ok := s.loadPoll(c)
	if !ok {
		return nil, false
	}
	if userID, _ := currentUser(c); userID != poll.CreatedByID {
		abortError(c, http.StatusForbidden, protocol.ErrorCodeNotOwner, "Not allowed")
		return nil, false
	}
	return poll, true
}

func (s *Server) findPoll(publicID string) (*models.Poll, error) {
	var poll models.Poll
	err := s.db.Preload("CreatedBy").Preload("Choices", orderChoices).
		Where("public_id = ?", publicID).First(&poll).Error
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

// refreshStatus derives the status from the schedule window and persists
// it when it changed.
func (s *Server) refreshStatus(p *models.Poll) {
	status := statusAt(p, s.Now())
	if status == p.Status {
		return
	}
	p.Status = status
	s.db.Model(&models.Poll{}).Where("id = ?", p.ID).Update("status", status)
}

func (s *Server) results(db *gorm.DB, pollID uint) (map[int64]int64, error) {
	var counts []models.VoteCount
	if err := db.Where("poll_id = ?", pollID).Find(&counts).Error; err != nil {
		return nil, err
	}
	results := make(map[int64]int64, len(counts))
	for _, vc := range counts {
		results[int64(vc.ChoiceID)] = vc.Count
	}
	return results, nil
}

func (s *Server) tokens(pollID uint) ([]string, error) {
	var rows []models.VoterToken
	if err := s.db.Where("poll_id = ?", pollID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	tokens := make([]string, len(rows))
	for i, r := range rows {
		tokens[i] = r.TokenString
	}
	return tokens, nil
}

func orderChoices(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}
