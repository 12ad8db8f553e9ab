// Package auth implements single-operator authentication: a bcrypt-hashed
// password exchanged for a short-lived HS256 JWT.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"weex-trading-bot/config"
	"weex-trading-bot/internal/logging"
)

// Claims is the JWT payload.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service issues and validates operator tokens.
type Service struct {
	config config.AuthConfig
	logger *logging.Logger
}

// NewService creates the auth service. Returns an error when auth is
// enabled without a JWT secret.
func NewService(cfg config.AuthConfig) (*Service, error) {
	if cfg.Enabled && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("auth enabled but AUTH_JWT_SECRET is not set")
	}
	if cfg.AccessTokenDuration <= 0 {
		cfg.AccessTokenDuration = 15 * time.Minute
	}
	return &Service{config: cfg, logger: logging.WithComponent("auth")}, nil
}

// Enabled reports whether authentication is enforced.
func (s *Service) Enabled() bool {
	return s.config.Enabled
}

// Login verifies the operator credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.config.OperatorUser {
		return "", fmt.Errorf("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.config.OperatorPassHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenDuration)),
			Issuer:    "weex-trading-bot",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token string.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// HashPassword bcrypt-hashes a password for AUTH_OPERATOR_PASS_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Middleware returns a gin middleware enforcing bearer auth. With auth
// disabled it is a pass-through.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.config.Enabled {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := s.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
