package identity

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

const (
	purposeSignIn = "signin"
	purposeReset  = "reset"
)

// codeClaims back the one-time codes mailed in links.
type codeClaims struct {
	Purpose string `json:"purpose"`
	Email   string `json:"email"`
	jwt.StandardClaims
}

// federatedClaims are read from an ID token issued by the federated provider.
type federatedClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.StandardClaims
}

func signCode(secret []byte, purpose, subject, email string, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, codeClaims{
		Purpose: purpose,
		Email:   email,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Subject:   subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s code: %w", purpose, err)
	}
	return signed, nil
}

func parseCode(secret []byte, code, purpose string) (*codeClaims, error) {
	claims := &codeClaims{}
	token, err := jwt.ParseWithClaims(code, claims, hmacKey(secret))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Purpose != purpose || claims.Id == "" {
		return nil, fmt.Errorf("code is not a %s code", purpose)
	}
	return claims, nil
}

func parseFederated(secret []byte, credential string) (*federatedClaims, error) {
	claims := &federatedClaims{}
	token, err := jwt.ParseWithClaims(credential, claims, hmacKey(secret))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

func hmacKey(secret []byte) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}
}
