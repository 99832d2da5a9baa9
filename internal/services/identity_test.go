package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/types"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func TestIdentityResolveRoles(t *testing.T) {
	svc := NewIdentityService(mustTestLogger(t), "test-secret")
	subject := uuid.New()

	cases := []struct {
		name     string
		role     types.Role
		wantRole types.Role
	}{
		{name: "staff_token", role: types.RoleStaff, wantRole: types.RoleStaff},
		{name: "visitor_token", role: types.RoleVisitor, wantRole: types.RoleVisitor},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := svc.Issue(subject, tc.role, time.Minute)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			ident := svc.Resolve(token)
			if ident.Role != tc.wantRole {
				t.Fatalf("role: want=%s got=%s", tc.wantRole, ident.Role)
			}
			if ident.SubjectID != subject {
				t.Fatalf("subject: want=%s got=%s", subject, ident.SubjectID)
			}
		})
	}
}

func TestIdentityResolveAdminClaimMapsToStaff(t *testing.T) {
	svc := NewIdentityService(mustTestLogger(t), "test-secret")
	token, err := svc.Issue(uuid.New(), types.Role("admin"), time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := svc.Resolve(token).Role; got != types.RoleStaff {
		t.Fatalf("admin claim: want=%s got=%s", types.RoleStaff, got)
	}
}

func TestIdentityResolveDegradesToGuest(t *testing.T) {
	svc := NewIdentityService(mustTestLogger(t), "test-secret")

	expired, err := svc.Issue(uuid.New(), types.RoleStaff, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	otherSvc := NewIdentityService(mustTestLogger(t), "other-secret")
	wrongKey, err := otherSvc.Issue(uuid.New(), types.RoleStaff, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	unknownRole, err := svc.Issue(uuid.New(), types.Role("superuser"), time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{name: "missing_token", token: ""},
		{name: "garbage_token", token: "not-a-jwt"},
		{name: "expired_token", token: expired},
		{name: "wrong_signature", token: wrongKey},
		{name: "unrecognized_role", token: unknownRole},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ident := svc.Resolve(tc.token)
			if ident.Role != types.RoleGuest {
				t.Fatalf("role: want=%s got=%s", types.RoleGuest, ident.Role)
			}
			if ident.SubjectID != uuid.Nil {
				t.Fatalf("guest subject should be nil uuid, got %s", ident.SubjectID)
			}
		})
	}
}
