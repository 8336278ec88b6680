package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"hseproject/models"
	"hseproject/utils"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller's identity. The subject is the user ID.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const ActorContextKey contextKey = "actor"

// JWTMiddleware resolves the bearer token into a models.Actor. An empty
// issuer skips the issuer check.
func JWTMiddleware(jwtSecret, issuer string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.HandleMessageResponse(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				utils.HandleMessageResponse(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(jwtSecret), nil
			}, opts...)
			if err != nil {
				utils.HandleMessageResponse(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid || claims.Subject == "" {
				utils.HandleMessageResponse(w, "Invalid token claims", http.StatusUnauthorized)
				return
			}
			role := claims.Role
			if role == "" {
				role = models.RoleUser
			}
			actor := models.Actor{ID: claims.Subject, Name: claims.Name, Role: role}
			noteActor(r.Context(), actor.ID)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext returns the zero Actor for unauthenticated requests.
func ActorFromContext(ctx context.Context) models.Actor {
	if actor, ok := ctx.Value(ActorContextKey).(models.Actor); ok {
		return actor
	}
	return models.Actor{}
}

// IssueToken signs a token for actor. Used by the token CLI command and tests.
func IssueToken(secret, issuer string, actor models.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: actor.Name,
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
