package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant is the media-service permission block of an access token
type VideoGrant struct {
	RoomJoin       bool   `json:"roomJoin,omitempty"`
	Room           string `json:"room,omitempty"`
	CanPublish     *bool  `json:"canPublish,omitempty"`
	CanSubscribe   *bool  `json:"canSubscribe,omitempty"`
	CanPublishData *bool  `json:"canPublishData,omitempty"`
}

// Claims represents the media access token claims
type Claims struct {
	Name  string      `json:"name,omitempty"`
	Video *VideoGrant `json:"video,omitempty"`
	jwt.RegisteredClaims
}

// MediaTokenIssuer signs short-lived room access tokens for the media server
type MediaTokenIssuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewMediaTokenIssuer creates a new token issuer
func NewMediaTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *MediaTokenIssuer {
	return &MediaTokenIssuer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		ttl:       ttl,
	}
}

// Identity is the media-service participant identity of a user
func Identity(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// ParseIdentity maps a media-service participant identity back to a user id
func ParseIdentity(identity string) (int64, error) {
	userID, err := strconv.ParseInt(identity, 10, 64)
	if err != nil || userID == 0 {
		return 0, fmt.Errorf("invalid participant identity %q", identity)
	}
	return userID, nil
}

// IssueRoomToken creates a token that lets userID join roomName
func (m *MediaTokenIssuer) IssueRoomToken(roomName string, userID int64, displayName string) (string, error) {
	if roomName == "" {
		return "", errors.New("room name required")
	}
	if m.apiKey == "" || m.apiSecret == "" {
		return "", errors.New("media credentials not configured")
	}

	allow := true
	now := time.Now()
	claims := &Claims{
		Name: displayName,
		Video: &VideoGrant{
			RoomJoin:       true,
			Room:           roomName,
			CanPublish:     &allow,
			CanSubscribe:   &allow,
			CanPublishData: &allow,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.apiKey,
			Subject:   Identity(userID),
			ID:        Identity(userID),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates and parses a token signed by this issuer
func (m *MediaTokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.apiSecret), nil
	}, jwt.WithIssuer(m.apiKey))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
