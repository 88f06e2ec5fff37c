package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	identityCookie = "sessionId"
	identityTTL    = 24 * time.Hour
)

// identities signs the anonymous player id carried in the sessionId cookie.
type identities struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func (i identities) mint(playerID string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   playerID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(identityTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i identities) parse(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("identity subject is not a player id")
	}
	return claims.Subject, nil
}

// cookieIdentity returns the player id carried by a valid cookie, or "".
func (s *Server) cookieIdentity(c *gin.Context) string {
	token, err := c.Cookie(identityCookie)
	if err != nil || token == "" {
		return ""
	}
	id, err := s.identities.parse(token)
	if err != nil {
		return ""
	}
	return id
}

// resolveIdentity returns the player id from a valid cookie, or a fresh one.
func (s *Server) resolveIdentity(c *gin.Context) string {
	if id := s.cookieIdentity(c); id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Server) setIdentity(c *gin.Context, playerID string) {
	token, err := s.identities.mint(playerID)
	if err != nil {
		log.Printf("identity mint failed player_id=%s error=%v", playerID, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(identityCookie, token, int(identityTTL.Seconds()), "/", "", s.identities.secure, true)
}
