package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/types"
)

// Identity is the result of resolving a connection's credential. Guest is
// the floor: a missing or broken token never rejects the connection, it
// only strips the role.
type Identity struct {
	Role      types.Role
	SubjectID uuid.UUID
}

func GuestIdentity() Identity {
	return Identity{Role: types.RoleGuest, SubjectID: uuid.Nil}
}

type SupportClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type IdentityService interface {
	Resolve(tokenString string) Identity
	Issue(subjectID uuid.UUID, role types.Role, ttl time.Duration) (string, error)
}

type identityService struct {
	log          *logger.Logger
	jwtSecretKey string
}

func NewIdentityService(log *logger.Logger, jwtSecretKey string) IdentityService {
	serviceLog := log.With("service", "IdentityService")
	return &identityService{log: serviceLog, jwtSecretKey: jwtSecretKey}
}

// Resolve never returns an error: every failure path degrades to guest so
// an anonymous visitor can still open a support conversation.
func (is *identityService) Resolve(tokenString string) Identity {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return GuestIdentity()
	}

	var claims SupportClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(is.jwtSecretKey), nil
	})
	if err != nil || !token.Valid {
		is.log.Debug("Credential rejected, degrading to guest", "error", err)
		return GuestIdentity()
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		is.log.Debug("Credential subject is not a uuid, degrading to guest", "subject", claims.Subject)
		return GuestIdentity()
	}

	switch strings.ToLower(strings.TrimSpace(claims.Role)) {
	case "staff", "admin":
		return Identity{Role: types.RoleStaff, SubjectID: subjectID}
	case "visitor", "user":
		return Identity{Role: types.RoleVisitor, SubjectID: subjectID}
	default:
		is.log.Debug("Credential carries unrecognized role claim, degrading to guest", "role", claims.Role)
		return GuestIdentity()
	}
}

func (is *identityService) Issue(subjectID uuid.UUID, role types.Role, ttl time.Duration) (string, error) {
	claims := SupportClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(is.jwtSecretKey))
}
