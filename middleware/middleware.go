package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"

	"tripy/apperr"
	"tripy/globals"
	"tripy/utils"
)

// JWT claims
type Claims struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Role     []string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 bearer tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses a raw token (with or without the "Bearer " prefix) and
// returns the user id it carries.
func (v *JWTVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", apperr.New(apperr.AuthenticationFailed, "missing token")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return "", apperr.Wrap(apperr.AuthenticationFailed, err, "invalid token")
	}
	if claims.UserID == "" {
		return "", apperr.New(apperr.AuthenticationFailed, "token has no user")
	}
	return claims.UserID, nil
}

// Sign issues a token for userID. Used by tooling and tests.
func (v *JWTVerifier) Sign(userID string, claims jwt.RegisteredClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: userID, RegisteredClaims: claims}).SignedString(v.secret)
}

func (v *JWTVerifier) Authenticate(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			utils.RespondWithAppError(w, apperr.New(apperr.AuthenticationFailed, "missing bearer token"))
			return
		}
		userID, err := v.Verify(header)
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), globals.UserIDKey, userID)
		next(w, r.WithContext(ctx), ps)
	}
}

func (v *JWTVerifier) OptionalAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			if userID, err := v.Verify(header); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), globals.UserIDKey, userID))
			}
		}
		// Proceed regardless of token state
		next(w, r, ps)
	}
}
