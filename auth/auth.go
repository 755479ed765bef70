package auth

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

var jwtSecret []byte

// AppClaims represents the custom claims for the JWT. The user identifier
// lives in the userId claim; registration/login and token issuance belong to
// the external credential service, which signs with the same shared secret.
type AppClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId"`
}

// Init loads the shared signing secret from the environment.
func Init() {
	jwtSecret = []byte(os.Getenv("JWT_SECRET"))
	if len(jwtSecret) == 0 {
		logrus.Warn("JWT_SECRET is not set. Token verification will not work.")
	}
}

// NewToken signs a token for the given user. This mirrors the external
// credential service's contract and backs the test suites.
func NewToken(userID string, ttl time.Duration) (string, error) {
	claims := AppClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseToken verifies a token's signature and expiry against the shared
// secret and returns its claims.
func ParseToken(tokenString string) (*AppClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AppClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// ParseBearer extracts and verifies the token from an Authorization header
// value of the form "Bearer <token>".
func ParseBearer(header string) (*AppClaims, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, fmt.Errorf("authorization header format must be Bearer {token}")
	}
	return ParseToken(parts[1])
}
