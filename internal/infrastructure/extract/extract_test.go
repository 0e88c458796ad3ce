package extract

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "kb-rag-api/pkg/errors"
)

func TestTextPlainFormats(t *testing.T) {
	got, err := Text("notes.md", []byte("# Title\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", got)

	got, err = Text("README.TXT", []byte("\xef\xbb\xbfhello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestTextRejectsInvalidInput(t *testing.T) {
	_, err := Text("bad.txt", []byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))

	_, err = Text("slides.pptx", []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Text("broken.pdf", []byte("not a pdf"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("dir/b.markdown"))
	assert.True(t, Supported("c.DOCX"))
	assert.False(t, Supported("d.doc"))
	assert.False(t, Supported("noext"))
}

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guide.txt")
	require.NoError(t, os.WriteFile(path, []byte("onboarding guide"), 0o644))

	got, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "onboarding guide", got)

	_, err = File(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func buildDocx(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTextDocx(t *testing.T) {
	body := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Leave</w:t></w:r><w:r><w:t xml:space="preserve"> policy</w:t></w:r></w:p>
<w:p><w:hyperlink><w:r><w:t>See HR</w:t></w:r></w:hyperlink><w:r><w:tab/><w:t>portal</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>Days: 20</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
</w:body>
</w:document>`
	data := buildDocx(t, map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
		"word/document.xml":   body,
	})

	got, err := Text("handbook.docx", data)
	require.NoError(t, err)
	assert.Equal(t, "Leave policy\nSee HR\tportal\nDays: 20", got)
}

func TestTextDocxRejectsBrokenArchives(t *testing.T) {
	_, err := Text("broken.docx", []byte("not a zip"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))

	_, err = Text("empty.docx", buildDocx(t, map[string]string{"docProps/core.xml": "<x/>"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word/document.xml")

	_, err = Text("bad.docx", buildDocx(t, map[string]string{"word/document.xml": "<w:document><w:body>"}))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeExtractionFailed))
}
