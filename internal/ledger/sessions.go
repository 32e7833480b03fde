package ledger

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Claims is the JWT payload of a session token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name     string `json:"name"`
	AvatarID string `json:"avatarId,omitempty"`
}

// Sessions issues and checks login tokens. A user has at most one live
// token: it is stored in the SESSIONS partition under the user id, and a
// token only identifies its user while it matches that record.
type Sessions struct {
	audit  *audit.Auditor
	users  *resource.Operations[schema.User, schema.UserPatch, schema.UserPublic]
	secret []byte
	ttl    time.Duration
	log    *zap.Logger
}

// Issue checks the PIN of userID and returns a fresh token, replacing any
// earlier session.
func (s *Sessions) Issue(userID, pin string) schema.Result[string] {
	if userID == "" || pin == "" {
		return schema.Fail(resource.ErrInvalidParams, "")
	}
	if len(s.secret) == 0 {
		return schema.Fail(ErrNoTokenSecret, "")
	}
	user, err := s.users.Read(userID)
	if err != nil {
		return schema.Fail(resource.ErrUnknownUser, "")
	}
	if !CheckPin(user.Data.Pin, pin) {
		s.log.Warn("wrong pin", zap.String("user", userID))
		return schema.Fail(ErrWrongPin, "")
	}

	s.Revoke(userID)

	now := s.audit.Clock().Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Name:     user.Data.Name,
		AvatarID: user.Data.AvatarID,
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return schema.Fail(err, "")
	}

	if _, err := s.audit.Create(schema.Sessions, userID, schema.Session{Token: token}, userID); err != nil {
		s.log.Error("session not stored", zap.String("user", userID), zap.Error(err))
		return schema.Fail(err, "")
	}
	s.log.Info("session opened", zap.String("user", userID))
	return schema.Ok(token)
}

// Identify resolves a token to the acting user.
func (s *Sessions) Identify(token string) schema.Result[*schema.Identity] {
	if token == "" {
		return schema.Fail[*schema.Identity](resource.ErrInvalidParams, nil)
	}
	claims, err := s.parse(token)
	if err != nil {
		return schema.Fail[*schema.Identity](err, nil)
	}

	var session schema.Session
	raw, err := s.audit.Load(schema.Sessions, claims.Subject)
	if err == nil {
		err = json.Unmarshal(raw.Data, &session)
	}
	if err != nil || session.Token != token {
		return schema.Fail[*schema.Identity](ErrWrongSession, nil)
	}

	user, err := s.users.Read(claims.Subject)
	if err != nil {
		return schema.Fail[*schema.Identity](resource.ErrUnknownUser, nil)
	}
	return schema.Ok(&schema.Identity{
		ID:       claims.Subject,
		Name:     user.Data.Name,
		AvatarID: user.Data.AvatarID,
	})
}

// Revoke drops the stored session of userID. It is best effort.
func (s *Sessions) Revoke(userID string) {
	if err := s.audit.Wipe(schema.Sessions, userID); err != nil {
		s.log.Warn("session wipe failed", zap.String("user", userID), zap.Error(err))
	}
}

func (s *Sessions) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnknownToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.audit.Clock().Now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrUnknownToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrUnknownToken
	}
	return claims, nil
}
