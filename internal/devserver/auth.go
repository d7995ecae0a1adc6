package devserver

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"pollctl/internal/auth"
	"pollctl/internal/models"
	"pollctl/pkg/protocol"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func (s *Server) Register(c *gin.Context) {
	var req protocol.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Invalid JSON")
		return
	}

	// Field errors follow the {"field": ["message"]} shape
	fieldErrs := gin.H{}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		fieldErrs["username"] = []string{"This field is required."}
	}
	if len(req.Password) < 6 {
		fieldErrs["password"] = []string{"Ensure this field has at least 6 characters."}
	} else if req.Password != req.Password2 {
		fieldErrs["password"] = []string{"Passwords must match"}
	}
	if len(fieldErrs) == 0 {
		var count int64
		s.db.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
		if count > 0 {
			fieldErrs["username"] = []string{"A user with that username already exists."}
		}
	}
	if len(fieldErrs) > 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, fieldErrs)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to hash password")
		return
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: hash,
	}
	if err := s.db.Create(&user).Error; err != nil {
		log.Printf("Failed to create user %s: %v", req.Username, err)
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to create user")
		return
	}

	access, refresh, err := s.issuer.IssuePair(user.ID, user.Username)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, protocol.AuthResponse{
		Message: "Registration successful",
		User:    toUser(&user),
		Access:  access,
		Refresh: refresh,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req protocol.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "Invalid JSON")
		return
	}

	var user models.User
	err := s.db.Where("username = ?", req.Username).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Database error")
		return
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		abortError(c, http.StatusUnauthorized, protocol.ErrorCodeUnauthorized, "Invalid credentials")
		return
	}

	access, refresh, err := s.issuer.IssuePair(user.ID, user.Username)
	if err != nil {
		abortError(c, http.StatusInternalServerError, protocol.ErrorCodeNone, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, protocol.AuthResponse{
		Message: "Login successful",
		User:    toUser(&user),
		Access:  access,
		Refresh: refresh,
	})
}

func (s *Server) RefreshToken(c *gin.Context) {
	var req protocol.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		abortError(c, http.StatusBadRequest, protocol.ErrorCodeValidation, "refresh is required")
		return
	}

	access, err := s.issuer.Refresh(req.Refresh)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorResponse{
			Detail:    "Token is invalid or expired",
			ErrorCode: protocol.ErrorCodeUnauthorized,
		})
		return
	}

	c.JSON(http.StatusOK, protocol.RefreshResponse{Access: access})
}

// Logout is stateless: tokens are dropped client-side.
func (s *Server) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.MessageResponse{Message: "Logout successful"})
}

func toUser(u *models.User) *protocol.User {
	return &protocol.User{
		ID:        int64(u.ID),
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}
