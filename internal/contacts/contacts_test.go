package contacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/internal/model"
)

func TestParse(t *testing.T) {
	in := "Name,Number,city\nAsha,98765 43210,Pune\nNo Number,,X\n,+1 (555) 010-0000\n"
	got, err := Parse(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []model.Recipient{
		{Number: "98765 43210", Name: "Asha"},
		{Number: "+1 (555) 010-0000"},
	}, got)
}

func TestParseRequiresNumberColumn(t *testing.T) {
	_, err := Parse(context.Background(), strings.NewReader("phone,name\n123,x\n"))
	assert.ErrorIs(t, err, ErrMissingNumberColumn)
	assert.Contains(t, err.Error(), "number")

	_, err = Parse(context.Background(), strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingNumberColumn)
}

func TestFileRejectsOtherFormats(t *testing.T) {
	_, err := File{Path: "contacts.xlsx"}.Load(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDir(t *testing.T) {
	d := Dir{Path: t.TempDir()}
	require.NoError(t, d.Save("vip.csv", strings.NewReader("number\n1\n")))
	require.NoError(t, d.Save("leads.csv", strings.NewReader("number,name\n2,Bo\n")))
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "notes.txt"), []byte("x"), 0o644))

	groups, err := d.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"leads.csv", "vip.csv"}, groups)

	f, err := d.Group("leads.csv")
	require.NoError(t, err)
	rs, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.Recipient{{Number: "2", Name: "Bo"}}, rs)

	_, err = d.Group("../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidGroupName)

	require.NoError(t, d.Delete("vip.csv"))
	require.NoError(t, d.Delete("vip.csv"))
	groups, err = d.Groups()
	require.NoError(t, err)
	assert.Equal(t, []string{"leads.csv"}, groups)
}
