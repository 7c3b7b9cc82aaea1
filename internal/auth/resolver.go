package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"equiprent/internal/config"
	"equiprent/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Resolver turns an incoming request into the acting identity.
type Resolver interface {
	Resolve(r *http.Request) (models.Actor, error)
}

func NewResolver(cfg config.ActorConfig) (Resolver, error) {
	switch cfg.Mode {
	case "jwt":
		return NewJWTResolver(cfg), nil
	case "header":
		return NewHeaderResolver(cfg), nil
	default:
		return nil, fmt.Errorf("unknown actor mode %q", cfg.Mode)
	}
}

// Claims carried by bearer tokens issued to renters and owners.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type JWTResolver struct {
	secret       []byte
	issuer       string
	defaultRoles []models.Role
}

func NewJWTResolver(cfg config.ActorConfig) *JWTResolver {
	return &JWTResolver{
		secret:       []byte(cfg.JWTSecret),
		issuer:       cfg.JWTIssuer,
		defaultRoles: models.ParseRoles(cfg.DefaultRoles),
	}
}

func (j *JWTResolver) Resolve(r *http.Request) (models.Actor, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return models.Actor{}, fmt.Errorf("%w: missing Authorization header", ErrUnauthenticated)
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return models.Actor{}, fmt.Errorf("%w: invalid Authorization header format", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(parts[1]), claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, opts...)
	if err != nil {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid || claims.Subject == "" {
		return models.Actor{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	roles := models.ParseRoles(claims.Roles)
	if len(roles) == 0 {
		roles = j.defaultRoles
	}
	return models.Actor{ID: claims.Subject, Roles: roles}, nil
}

// Sign issues a token for actor. Used by tests and local tooling.
func (j *JWTResolver) Sign(actor models.Actor, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = actor.ID
	if claims.Issuer == "" {
		claims.Issuer = j.issuer
	}
	roles := make([]string, len(actor.Roles))
	for i, r := range actor.Roles {
		roles[i] = string(r)
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Roles: roles, RegisteredClaims: claims}).SignedString(j.secret)
}

// HeaderResolver trusts identity headers set by an upstream gateway.
type HeaderResolver struct {
	idHeader     string
	rolesHeader  string
	defaultRoles []models.Role
}

func NewHeaderResolver(cfg config.ActorConfig) *HeaderResolver {
	return &HeaderResolver{
		idHeader:     cfg.HeaderID,
		rolesHeader:  cfg.HeaderRoles,
		defaultRoles: models.ParseRoles(cfg.DefaultRoles),
	}
}

func (h *HeaderResolver) Resolve(r *http.Request) (models.Actor, error) {
	id := strings.TrimSpace(r.Header.Get(h.idHeader))
	if id == "" {
		return models.Actor{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, h.idHeader)
	}

	var raw []string
	for _, p := range strings.Split(r.Header.Get(h.rolesHeader), ",") {
		if p = strings.TrimSpace(p); p != "" {
			raw = append(raw, strings.ToLower(p))
		}
	}
	roles := models.ParseRoles(raw)
	if len(roles) == 0 {
		roles = h.defaultRoles
	}
	return models.Actor{ID: id, Roles: roles}, nil
}
