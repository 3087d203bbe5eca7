// Package auth issues and parses the HS256 tokens the relay hands out:
// session tokens carrying a verified fid, and challenge tokens carrying a
// sign-in challenge.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/dmitrijs2005/signerrelay/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionAudience   = "relay-session"
	challengeAudience = "relay-challenge"
)

// Claims is the session token payload: standard claims plus the verified fid.
type Claims struct {
	jwt.RegisteredClaims
	FID int64 `json:"fid"`
}

// ChallengeClaims is the challenge token payload. The nonce travels as the
// token ID.
type ChallengeClaims struct {
	jwt.RegisteredClaims
	Domain string `json:"domain"`
}

func GenerateToken(fid int64, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		FID: fid,
	})

	return token.SignedString(secretKey)
}

// GetUserIDFromToken returns the fid of a valid session token.
func GetUserIDFromToken(tokenString string, secretKey []byte) (int64, error) {
	claims := &Claims{}
	if err := parse(tokenString, claims, sessionAudience, secretKey); err != nil {
		return 0, err
	}
	if claims.FID <= 0 {
		return 0, common.ErrInvalidToken
	}
	return claims.FID, nil
}

// GenerateChallengeToken signs ch so the relay can verify it later without
// keeping state.
func GenerateChallengeToken(ch models.SignInChallenge, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ChallengeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ch.Nonce,
			Audience:  jwt.ClaimStrings{challengeAudience},
			ExpiresAt: jwt.NewNumericDate(ch.ExpiresAt),
		},
		Domain: ch.Domain,
	})

	return token.SignedString(secretKey)
}

// ParseChallengeToken returns the challenge embedded in a challenge token.
// An elapsed challenge yields common.ErrTokenExpired.
func ParseChallengeToken(tokenString string, secretKey []byte) (models.SignInChallenge, error) {
	claims := &ChallengeClaims{}
	if err := parse(tokenString, claims, challengeAudience, secretKey); err != nil {
		return models.SignInChallenge{}, err
	}
	if claims.ID == "" || claims.Domain == "" || claims.ExpiresAt == nil {
		return models.SignInChallenge{}, common.ErrInvalidToken
	}
	return models.SignInChallenge{
		Domain:    claims.Domain,
		Nonce:     claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func parse(tokenString string, claims jwt.Claims, audience string, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}

	return nil
}
