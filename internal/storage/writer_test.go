package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{
			name:     "normal filename",
			filename: "invoice.pdf",
			want:     "invoice.pdf",
		},
		{
			name:     "slash and colon replaced",
			filename: "a/b:c.pdf",
			want:     "a_b_c.pdf",
		},
		{
			name:     "every illegal character",
			filename: `x\y/z:*?"<>|.png`,
			want:     "x_y_z_______.png",
		},
		{
			name:     "control characters",
			filename: "bad\x00name\n.pdf",
			want:     "bad_name_.pdf",
		},
		{
			name:     "parent directory",
			filename: "..",
			want:     "attachment",
		},
		{
			name:     "path traversal stays one element",
			filename: "../../etc/passwd",
			want:     ".._.._etc_passwd",
		},
		{
			name:     "empty",
			filename: "",
			want:     "attachment",
		},
		{
			name:     "surrounding spaces and trailing dot",
			filename: "  receipt.pdf. ",
			want:     "receipt.pdf",
		},
		{
			name:     "unicode kept",
			filename: "חשבונית מס.pdf",
			want:     "חשבונית מס.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.filename))
		})
	}
}

func TestSafeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("ק", 400) + ".pdf"

	got := SafeFilename(long)

	assert.Equal(t, MaxFilenameLength, utf8.RuneCountInString(got))
	assert.NotContains(t, got, "/")
	assert.True(t, strings.HasSuffix(got, ".pdf"), "extension dropped: %q", got)
}

func TestSafeFilename_TruncatesKeepingExtension(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "ascii stem",
			in:   strings.Repeat("a", 200) + ".pdf",
			want: strings.Repeat("a", MaxFilenameLength-4) + ".pdf",
		},
		{
			name: "trailing dots before the extension are trimmed",
			in:   strings.Repeat("a", MaxFilenameLength-5) + strings.Repeat(".", 30) + ".jpeg",
			want: strings.Repeat("a", MaxFilenameLength-5) + ".jpeg",
		},
		{
			name: "long suffix is not treated as an extension",
			in:   "report." + strings.Repeat("x", 200),
			want: ("report." + strings.Repeat("x", 200))[:MaxFilenameLength],
		},
		{
			name: "no extension",
			in:   strings.Repeat("b", 300),
			want: strings.Repeat("b", MaxFilenameLength),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.in))
		})
	}
}

func TestWriter_Write(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	res, err := w.Write("msg1", "a/b:c.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	want := filepath.Join(root, "msg1", "a_b_c.pdf")
	assert.Equal(t, want, res.Path)
	assert.Equal(t, int64(8), res.Bytes)
	assert.Len(t, res.SHA256, 64)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	// No subdirectory is created from the filename itself.
	entries, err := os.ReadDir(filepath.Join(root, "msg1"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsDir())
}

func TestWriter_WriteOverwritesSamePath(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	first, err := w.Write("msg1", "invoice.pdf", []byte("first"))
	require.NoError(t, err)
	second, err := w.Write("msg1", "invoice.pdf", []byte("second, longer"))
	require.NoError(t, err)

	assert.Equal(t, first.Path, second.Path)

	data, err := os.ReadFile(second.Path)
	require.NoError(t, err)
	assert.Equal(t, "second, longer", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "msg1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriter_NeverDeletesExistingContent(t *testing.T) {
	root := t.TempDir()
	keep := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	_, err := NewWriter(root).Write("msg1", "a.png", []byte{1, 2, 3})
	require.NoError(t, err)

	_, err = os.Stat(keep)
	assert.NoError(t, err)
}

func TestWriter_Existing(t *testing.T) {
	root := t.TempDir()
	w := NewWriter(root)

	_, err := w.Write("msg1", "invoice.pdf", []byte("x"))
	require.NoError(t, err)

	path, ok := w.Existing("msg1", "invoice.pdf")
	assert.False(t, ok, "Existing must be false unless SkipExisting is set")
	assert.Equal(t, filepath.Join(root, "msg1", "invoice.pdf"), path)

	w.SkipExisting = true
	_, ok = w.Existing("msg1", "invoice.pdf")
	assert.True(t, ok)

	_, ok = w.Existing("msg1", "other.pdf")
	assert.False(t, ok)
}

func TestWriter_EmptyRoot(t *testing.T) {
	_, err := NewWriter("").Write("msg1", "a.pdf", []byte("x"))
	assert.Error(t, err)
}
