package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTemplatesCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	a, err := s.CreateTemplate(ctx, model.Template{Name: "a", Message: "{Hi|Hello} {name}", Attachments: []string{"flyer.png"}})
	require.NoError(t, err)
	b, err := s.CreateTemplate(ctx, model.Template{Name: "b", Message: "second"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	list, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, []string{"flyer.png"}, list[0].Attachments)
	assert.Equal(t, []string{}, list[1].Attachments)

	b.Message = "changed"
	require.NoError(t, s.UpdateTemplate(ctx, b))
	got, err := s.GetTemplate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Message)

	require.NoError(t, s.RenameAttachment(ctx, "flyer.png", "poster.png"))
	got, err = s.GetTemplate(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"poster.png"}, got.Attachments)

	require.NoError(t, s.DeleteTemplate(ctx, a.ID))
	_, err = s.GetTemplate(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateTemplate(ctx, model.Template{ID: "missing"}), ErrNotFound)
}

func TestProgress(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	idx, err := s.Progress(ctx, "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	require.NoError(t, s.SaveProgress(ctx, "leads.csv", 3))
	require.NoError(t, s.SaveProgress(ctx, "leads.csv", 7))
	require.NoError(t, s.SaveProgress(ctx, "vip.csv", 1))
	idx, err = s.Progress(ctx, "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, 7, idx)

	all, err := s.AllProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"leads.csv": 7, "vip.csv": 1}, all)

	require.NoError(t, s.ResetProgress(ctx, "leads.csv"))
	idx, err = s.Progress(ctx, "leads.csv")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalSent)
	assert.Empty(t, st.Daily)

	require.NoError(t, s.AddSent(ctx, "2026-10-14", 4))
	require.NoError(t, s.AddSent(ctx, "2026-10-15", 2))
	require.NoError(t, s.AddSent(ctx, "2026-10-15", 3))

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, st.TotalSent)
	assert.Equal(t, []model.DailyStat{{Date: "2026-10-14", Sent: 4}, {Date: "2026-10-15", Sent: 5}}, st.Daily)

	require.NoError(t, s.ResetStats(ctx))
	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalSent)
}
