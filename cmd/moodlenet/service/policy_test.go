package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HuongNV13/moodle/common/cache"
	"github.com/HuongNV13/moodle/common/config"
	"github.com/HuongNV13/moodle/common/logger"
)

type stubRoles struct {
	role  string
	calls int
}

func (s *stubRoles) GetUserRole(ctx context.Context, userID, courseID int64) (string, error) {
	s.calls++
	return s.role, nil
}

func testPolicy(t *testing.T, enabled bool, expression, role string) (*PolicyService, *stubRoles) {
	t.Helper()
	log := logger.New("error", "text")

	cfg := &config.Config{}
	cfg.MoodleNet.Enabled = enabled
	cfg.MoodleNet.SharePolicy = expression

	roles := &stubRoles{role: role}
	c := cache.NewMemoryCache(log)
	t.Cleanup(func() { c.Close() })

	return NewPolicyService(cfg, roles, c, log), roles
}

func TestPolicyAllows_DefaultPolicy(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		role    string
		want    bool
	}{
		{"editing teacher allowed", true, "editingteacher", true},
		{"manager allowed", true, "manager", true},
		{"course creator allowed", true, "coursecreator", true},
		{"student denied", true, "student", false},
		{"unenrolled denied", true, "", false},
		{"disabled site denies everyone", false, "manager", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := testPolicy(t, tt.enabled, config.DefaultSharePolicy, tt.role)

			allowed, err := p.Allows(context.Background(), testUserID, testCourseID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestPolicyAllows_CustomExpression(t *testing.T) {
	p, _ := testPolicy(t, true, `role == "student" && courseid == 100`, "student")

	allowed, err := p.Allows(context.Background(), testUserID, testCourseID)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = p.Allows(context.Background(), testUserID, 200)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestPolicyAllows_InvalidExpression(t *testing.T) {
	p, _ := testPolicy(t, true, `role ===`, "manager")

	_, err := p.Allows(context.Background(), testUserID, testCourseID)
	assert.Error(t, err)
}

func TestPolicyAllows_NonBooleanExpression(t *testing.T) {
	p, _ := testPolicy(t, true, `role`, "manager")

	_, err := p.Allows(context.Background(), testUserID, testCourseID)
	assert.Error(t, err)
}

func TestPolicyAllows_RoleLookupIsCached(t *testing.T) {
	p, roles := testPolicy(t, true, config.DefaultSharePolicy, "manager")

	for i := 0; i < 3; i++ {
		_, err := p.Allows(context.Background(), testUserID, testCourseID)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, roles.calls)
}
