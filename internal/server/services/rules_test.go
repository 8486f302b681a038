package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/studynote/internal/common"
	"github.com/dmitrijs2005/studynote/internal/docstore"
)

func TestRules(t *testing.T) {
	r := DefaultRules()
	mine := map[string]any{"userId": "u1", "title": "t"}

	assert.NoError(t, r.CanCreate("u1", "notes", mine))
	assert.ErrorIs(t, r.CanCreate("u2", "notes", mine), common.ErrorPermissionDenied)
	assert.ErrorIs(t, r.CanCreate("u1", "notes", map[string]any{"title": "no owner"}), common.ErrorPermissionDenied)
	assert.ErrorIs(t, r.CanCreate("u1", "other", mine), common.ErrorPermissionDenied)

	assert.NoError(t, r.CanModify("u1", "notes", mine, nil))
	assert.NoError(t, r.CanModify("u1", "notes", mine, map[string]any{"userId": "u1"}))
	assert.ErrorIs(t, r.CanModify("u1", "notes", mine, map[string]any{"userId": 7}), common.ErrorPermissionDenied)
	assert.ErrorIs(t, r.CanModify("u2", "notes", mine, nil), common.ErrorPermissionDenied)

	assert.NoError(t, r.CanRead("u1", "notes", docstore.Filter{Field: "userId", Value: "u1"}))
	assert.ErrorIs(t, r.CanRead("u1", "notes", docstore.Filter{Field: "userId", Value: "u2"}), common.ErrorPermissionDenied)
	assert.ErrorIs(t, r.CanRead("u1", "other", docstore.Filter{Field: "userId", Value: "u1"}), common.ErrorPermissionDenied)
}

func TestRules_ChangeKeys(t *testing.T) {
	r := DefaultRules()

	fields := map[string]any{"userId": "u1", "title": "t", "body": "secret"}
	assert.Equal(t, map[string]string{"userId": "u1"}, r.ChangeKeys(common.NotesCollection, fields))
	assert.Empty(t, r.ChangeKeys("secrets", fields))
}
