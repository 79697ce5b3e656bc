// Package auth issues and verifies the JWT tokens used by the HTTP
// surface.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "nodeflow"

// Identity is the authenticated caller extracted from a token
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// ExtractToken extracts the JWT token from an Authorization header
// value. Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// JWTAuth signs and verifies access and refresh tokens
type JWTAuth struct {
	SecretKey          []byte
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

func NewJWTAuth(secretKey string, accessExpiry, refreshExpiry time.Duration) (*JWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("JWT secret key cannot be empty")
	}

	if accessExpiry == 0 {
		accessExpiry = 15 * time.Minute
	}

	if refreshExpiry == 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}

	return &JWTAuth{
		SecretKey:          []byte(secretKey),
		AccessTokenExpiry:  accessExpiry,
		RefreshTokenExpiry: refreshExpiry,
	}, nil
}

// Claims are the token claims carried by both token kinds
type Claims struct {
	UserID   string `json:"sub"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TokenID  string `json:"jti,omitempty"` // set on refresh tokens only
	jwt.RegisteredClaims
}

// GenerateTokens generates both access and refresh tokens
func (a *JWTAuth) GenerateTokens(userID, username, role string) (accessToken, refreshToken string, err error) {
	tokenID, err := generateTokenID()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := time.Now()
	accessClaims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.AccessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	accessToken, err = jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(a.SecretKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		TokenID:  tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.RefreshTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	refreshToken, err = jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(a.SecretKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return accessToken, refreshToken, nil
}

// VerifyAccessToken verifies an access token and returns the caller
func (a *JWTAuth) VerifyAccessToken(tokenString string) (*Identity, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return nil, err
	}
	return &Identity{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// VerifyRefreshToken verifies a refresh token and returns its claims
func (a *JWTAuth) VerifyRefreshToken(tokenString string) (*Claims, error) {
	claims, err := a.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenID == "" {
		return nil, errors.New("not a refresh token")
	}
	return claims, nil
}

func (a *JWTAuth) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

func generateTokenID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// ValidatePassword checks if a password meets account requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}

	var hasUpper, hasLower, hasNumber bool
	for _, char := range password {
		switch {
		case 'A' <= char && char <= 'Z':
			hasUpper = true
		case 'a' <= char && char <= 'z':
			hasLower = true
		case '0' <= char && char <= '9':
			hasNumber = true
		}
	}

	if !hasUpper {
		return errors.New("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return errors.New("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return errors.New("password must contain at least one number")
	}
	return nil
}
