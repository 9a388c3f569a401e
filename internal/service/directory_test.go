package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/msp-sla/internal/domain"
)

func TestDirectoryFindSeniorTechnician(t *testing.T) {
	ctx := context.Background()
	senior := &domain.StaffMember{ID: "st-9", CompanyID: "co-1", Role: domain.StaffRoleSeniorTechnician, Active: true}

	t.Run("overload threshold only applies when excluding", func(t *testing.T) {
		staff := &fakeStaff{senior: senior}
		dir := NewDirectory(DirectoryDependencies{StaffRepo: staff, OverloadThreshold: 3})

		got, err := dir.FindSeniorTechnician(ctx, "co-1", "", true)
		require.NoError(t, err)
		assert.Equal(t, "st-9", got.ID)

		_, err = dir.FindSeniorTechnician(ctx, "co-1", "", false)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 0}, staff.maxCritical)
	})

	t.Run("nobody eligible", func(t *testing.T) {
		dir := NewDirectory(DirectoryDependencies{StaffRepo: &fakeStaff{}})
		got, err := dir.FindSeniorTechnician(ctx, "co-1", "", true)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("current assignee is skipped", func(t *testing.T) {
		staff := &fakeStaff{senior: senior}
		dir := NewDirectory(DirectoryDependencies{StaffRepo: staff})
		got, err := dir.FindSeniorTechnician(ctx, "co-1", "st-9", true)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, []string{"st-9"}, staff.excluded)
	})
}

func TestDirectoryGetAssignedSLAPolicyID(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(DirectoryDependencies{ClientRepo: fakeClients{
		"cl-1": {ID: "cl-1", CompanyID: "co-1", SLAPolicyID: strPtr("pol-gold")},
		"cl-2": {ID: "cl-2", CompanyID: "co-1"},
	}})

	id, err := dir.GetAssignedSLAPolicyID(ctx, "cl-1")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "pol-gold", *id)

	id, err = dir.GetAssignedSLAPolicyID(ctx, "cl-2")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = dir.GetAssignedSLAPolicyID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = dir.GetAssignedSLAPolicyID(ctx, "cl-missing")
	assert.Error(t, err)
}

func TestDirectoryGetDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	now := at(10, 12, 0)

	t.Run("none configured", func(t *testing.T) {
		dir := NewDirectory(DirectoryDependencies{PolicyRepo: newFakePolicies()})
		got, err := dir.GetDefaultPolicy(ctx, "co-1", now)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("newest default wins and the ambiguity is logged", func(t *testing.T) {
		older := validPolicy("pol-old")
		older.IsDefault = true
		newer := validPolicy("pol-new")
		newer.IsDefault = true
		newer.CreatedAt = older.CreatedAt.Add(24 * time.Hour)
		notYet := validPolicy("pol-future")
		notYet.IsDefault = true
		notYet.EffectiveFrom = now.Add(time.Hour)
		notYet.CreatedAt = newer.CreatedAt.Add(time.Hour)

		core, logs := observer.New(zapcore.WarnLevel)
		dir := NewDirectory(DirectoryDependencies{
			PolicyRepo: newFakePolicies(older, newer, notYet),
			Logger:     zap.New(core),
		})

		got, err := dir.GetDefaultPolicy(ctx, "co-1", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "pol-new", got.ID)

		entries := logs.FilterMessage("multiple default sla policies").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "pol-new", entries[0].ContextMap()["selected"])
	})
}
