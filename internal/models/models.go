package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username     string `gorm:"uniqueIndex"`
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
}

type Poll struct {
	gorm.Model
	PublicID    string `gorm:"uniqueIndex"`
	Title       string
	Description string
	CreatedByID uint
	CreatedBy   User
	StartsAt    time.Time
	EndsAt      time.Time
	IsPublic    bool
	VotingMode  string
	Status      string
	Choices     []Choice `gorm:"constraint:OnDelete:CASCADE"`
}

type Choice struct {
	ID       uint `gorm:"primarykey"`
	PollID   uint `gorm:"index"`
	Text     string
	Position int
}

// VoteCount is the per-choice tally. Rows are created lazily on first vote.
type VoteCount struct {
	PollID   uint `gorm:"primaryKey"`
	ChoiceID uint `gorm:"primaryKey"`
	Count    int64
}

// Voter records a voter token that has been spent on a poll. For open polls
// the token is whatever correlation value the client sent.
type Voter struct {
	PollID    uint   `gorm:"primaryKey"`
	TokenHash string `gorm:"primaryKey"`
	CreatedAt time.Time
}

// VoterToken is an owner-issued credential for a restricted poll.
type VoterToken struct {
	ID          uint   `gorm:"primarykey"`
	PollID      uint   `gorm:"index"`
	TokenString string // returned to the owner on get-tokens
	TokenHash   string `gorm:"uniqueIndex"`
	CreatedAt   time.Time
}

// PollResult stores finalized results after closure.
type PollResult struct {
	ID          uint `gorm:"primarykey"`
	PollID      uint `gorm:"uniqueIndex"`
	Results     string // JSON object choice id -> count
	TotalVotes  int64
	FinalizedAt time.Time
}
