package localstore

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
)

var ErrUnauthorized = errors.New("unauthorized")

// TokenIssuer implements the client_credentials grant of the identity
// endpoint and validates the bearer tokens it signs.
type TokenIssuer struct {
	secret  []byte
	tenant  string
	ttl     time.Duration
	clients map[string]string
	now     func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// NewTokenIssuer accepts the given client id/secret pairs. With no clients
// any non-empty client id is accepted.
func NewTokenIssuer(secret []byte, tenant string, clients map[string]string) *TokenIssuer {
	return &TokenIssuer{
		secret:  secret,
		tenant:  tenant,
		ttl:     time.Hour,
		clients: clients,
		now:     time.Now,
	}
}

func (t *TokenIssuer) authenticate(clientID, clientSecret string) bool {
	if clientID == "" {
		return false
	}
	if len(t.clients) == 0 {
		return true
	}
	expected, ok := t.clients[clientID]
	return ok && subtle.ConstantTimeCompare([]byte(expected), []byte(clientSecret)) == 1
}

func (t *TokenIssuer) Issue(clientID string) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{
			"sub":       clientID,
			"client_id": clientID,
			"tid":       t.tenant,
			"jti":       uuid.NewString(),
			"iat":       now.Unix(),
			"exp":       now.Add(t.ttl).Unix(),
		})
	return token.SignedString(t.secret)
}

func (t *TokenIssuer) Validate(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// TokenHandler serves POST /identity/connect/token.
func (t *TokenIssuer) TokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	if grant := r.PostForm.Get("grant_type"); grant != "client_credentials" {
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type")
		return
	}
	clientID, clientSecret, ok := r.BasicAuth()
	if !ok {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	if !t.authenticate(clientID, clientSecret) {
		writeTokenError(w, http.StatusUnauthorized, "invalid_client")
		return
	}
	signed, err := t.Issue(clientID)
	if err != nil {
		log.Printf("Failed to sign token for %s: %v", clientID, err)
		http.Error(w, "token signing failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = jsoncompat.NewEncoder(w).Encode(tokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(t.ttl / time.Second),
	})
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoncompat.NewEncoder(w).Encode(map[string]string{"error": code})
}

// AuthMiddleware rejects requests without a valid bearer token.
func (t *TokenIssuer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := t.Validate(raw); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
