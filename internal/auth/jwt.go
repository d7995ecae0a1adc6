package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrInvalidJWT = errors.New("invalid or expired token")

// Issuer mints and verifies HS256 access/refresh token pairs.
type Issuer struct {
	secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret []byte) *Issuer {
	return &Issuer{
		secret:     secret,
		AccessTTL:  5 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		now:        time.Now,
	}
}

// IssuePair returns a fresh access and refresh token for the user.
func (i *Issuer) IssuePair(userID uint, username string) (access, refresh string, err error) {
	access, err = i.sign(userID, username, tokenTypeAccess, i.AccessTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.sign(userID, username, tokenTypeRefresh, i.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Refresh validates a refresh token and mints a new access token.
func (i *Issuer) Refresh(refresh string) (string, error) {
	userID, username, err := i.parse(refresh, tokenTypeRefresh)
	if err != nil {
		return "", err
	}
	return i.sign(userID, username, tokenTypeAccess, i.AccessTTL)
}

// ParseAccess validates an access token and returns its user id.
func (i *Issuer) ParseAccess(access string) (uint, error) {
	userID, _, err := i.parse(access, tokenTypeAccess)
	return userID, err
}

func (i *Issuer) sign(userID uint, username, typ string, ttl time.Duration) (string, error) {
	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"typ":      typ,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		// jti keeps two tokens minted in the same second distinct
		"jti": fmt.Sprintf("%d", now.UnixNano()),
	})
	return token.SignedString(i.secret)
}

func (i *Issuer) parse(tokenString, wantType string) (uint, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return 0, "", ErrInvalidJWT
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["typ"] != wantType {
		return 0, "", ErrInvalidJWT
	}

	id, ok := claims["user_id"].(float64)
	if !ok || id <= 0 {
		return 0, "", ErrInvalidJWT
	}
	username, _ := claims["username"].(string)
	return uint(id), username, nil
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
