package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/agromarket/internal/domain"
)

const (
	// HeaderUserID и HeaderUserRole проставляет шлюз аутентификации перед сервисом.
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	actorContextKey = "agromarket.actor"
)

// ErrUnauthenticated — личность вызывающего не установлена.
var ErrUnauthenticated = errors.New("caller identity is missing or invalid")

// Authenticator определяет участника запроса.
type Authenticator interface {
	Authenticate(r *http.Request) (domain.Actor, error)
}

// HeaderAuthenticator доверяет заголовкам шлюза. Без роли пользователь считается покупателем.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (domain.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return domain.Actor{}, ErrUnauthenticated
	}

	role := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	if role == "" {
		role = domain.RoleBuyer
	}
	if !role.Valid() {
		return domain.Actor{}, ErrUnauthenticated
	}
	return domain.Actor{ID: id, Role: role}, nil
}

// authenticate кладёт участника в контекст gin или отвечает 401.
func authenticate(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := auth.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
				Success: false,
				Message: "authentication required",
				Error:   kindUnauthenticated,
			})
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	actor, _ := c.Get(actorContextKey)
	a, _ := actor.(domain.Actor)
	return a
}
