package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFilenameLength bounds sanitized names, in runes.
	MaxFilenameLength = 180

	// maxExtensionLength is the longest extension, dot included, kept when
	// truncating.
	maxExtensionLength = 16

	// fallbackName replaces names that sanitize to nothing usable.
	fallbackName = "attachment"

	dirMode  = 0o755
	fileMode = 0o644
)

// illegalChars are rejected by at least one common filesystem.
const illegalChars = `\/:*?"<>|`

// SafeFilename makes name usable as a single path element on common
// filesystems. Illegal characters and control characters become "_", the
// result is trimmed and truncated to MaxFilenameLength runes. Names that
// end up empty, "." or ".." become "attachment".
func SafeFilename(name string) string {
	if !utf8.ValidString(name) {
		name = strings.ToValidUTF8(name, "_")
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(illegalChars, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	safe := strings.TrimSpace(b.String())
	// Windows silently drops trailing dots.
	safe = strings.TrimRight(safe, ". ")

	if utf8.RuneCountInString(safe) > MaxFilenameLength {
		safe = truncate(safe)
	}

	if safe == "" || safe == "." || safe == ".." {
		return fallbackName
	}
	return safe
}

// WriteResult describes a persisted attachment.
type WriteResult struct {
	Path   string
	Bytes  int64
	SHA256 string
}

// Writer persists attachments under Root/<message_id>/<filename>.
// It only ever creates or replaces files; it never deletes.
type Writer struct {
	root string

	// SkipExisting makes Existing report files already on disk, so they can
	// be skipped without fetching them again.
	SkipExisting bool
}

// truncate shortens name to MaxFilenameLength runes, cutting the stem and
// keeping a short extension intact.
func truncate(name string) string {
	ext := filepath.Ext(name)
	extLen := utf8.RuneCountInString(ext)
	if extLen <= 1 || extLen > maxExtensionLength {
		return strings.TrimSpace(string([]rune(name)[:MaxFilenameLength]))
	}

	stem := []rune(strings.TrimSuffix(name, ext))
	stem = stem[:MaxFilenameLength-extLen]
	return strings.TrimRight(string(stem), ". ") + ext
}

// NewWriter returns a Writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

// Root returns the output root.
func (w *Writer) Root() string {
	return w.root
}

// Path returns where the attachment filename of messageID is stored. The
// same pair always maps to the same path.
func (w *Writer) Path(messageID, filename string) string {
	return filepath.Join(w.root, SafeFilename(messageID), SafeFilename(filename))
}

// Existing returns the target path and true when SkipExisting is set and a
// regular file is already present there.
func (w *Writer) Existing(messageID, filename string) (string, bool) {
	path := w.Path(messageID, filename)
	if !w.SkipExisting {
		return path, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return path, false
	}
	return path, true
}

// Write stores data for the attachment, creating the per-message directory
// if needed. An existing file at the same path is replaced atomically.
func (w *Writer) Write(messageID, filename string, data []byte) (WriteResult, error) {
	if w.root == "" {
		return WriteResult{}, errors.New("output root is not set")
	}

	path := w.Path(messageID, filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return WriteResult{}, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return WriteResult{}, fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, fileMode); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return WriteResult{}, fmt.Errorf("rename into %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	return WriteResult{
		Path:   path,
		Bytes:  int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}
