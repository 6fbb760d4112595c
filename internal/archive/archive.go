package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kalambet/dfpfetch/internal/audit"
)

// ErrCorruptArchive marks a downloaded archive that cannot be unpacked.
// It is terminal for the ticker: the artifact itself is bad, so retrying
// extraction cannot help.
var ErrCorruptArchive = errors.New("corrupt archive")

// zipMagic is the ZIP local-file-header signature.
var zipMagic = []byte("PK\x03\x04")

// workbookMarker identifies the structured statement workbook the portal
// ships inside filing archives.
const workbookMarker = "dadosdocumento"

// Validate checks that path names a non-empty file starting with the ZIP
// signature. It catches truncated and mislabeled downloads before unpacking.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrCorruptArchive, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer f.Close()

	sig := make([]byte, len(zipMagic))
	if _, err := io.ReadFull(f, sig); err != nil {
		return fmt.Errorf("%w: reading signature of %s: %v", ErrCorruptArchive, path, err)
	}
	if !bytes.Equal(sig, zipMagic) {
		return fmt.Errorf("%w: %s is not a zip archive", ErrCorruptArchive, path)
	}
	return nil
}

// Extract unpacks the archive at zipPath into extractedDir, mirroring the
// archive's internal structure, classifies every entry, and flattens
// statement PDFs into pdfsDir. An archive with no statement documents yields
// a set with only "other" entries, which is not an error.
func Extract(zipPath, extractedDir, pdfsDir string) ([]audit.Document, error) {
	if err := Validate(zipPath); err != nil {
		return nil, err
	}
	paths, err := unpack(zipPath, extractedDir)
	if err != nil {
		return nil, err
	}

	docs := make([]audit.Document, 0, len(paths))
	for _, path := range paths {
		doc := audit.Document{Path: path, Type: classify(path)}
		if doc.Type == audit.DocStatementPDF {
			copied, err := flatten(path, pdfsDir)
			if err != nil {
				return nil, fmt.Errorf("flattening %s: %w", path, err)
			}
			doc.CopiedTo = copied
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Workbooks returns the extracted paths of statement workbooks.
func Workbooks(docs []audit.Document) []string {
	var paths []string
	for _, d := range docs {
		if d.Type == audit.DocStatementWorkbook {
			paths = append(paths, d.Path)
		}
	}
	return paths
}

// PDFCopies returns the flattened pdfs/ paths of statement PDFs.
func PDFCopies(docs []audit.Document) []string {
	var paths []string
	for _, d := range docs {
		if d.Type == audit.DocStatementPDF {
			paths = append(paths, d.CopiedTo)
		}
	}
	return paths
}

func unpack(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, f := range r.File {
		dest, err := entryPath(destDir, f.Name)
		if err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return nil, err
			}
			continue
		}
		if err := writeEntry(f, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

// entryPath resolves an archive entry name under destDir, rejecting entries
// that escape it.
func entryPath(destDir, name string) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrCorruptArchive, name)
	}
	return dest, nil
}

func writeEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}
	return out.Close()
}

func classify(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(base, ".pdf"):
		return audit.DocStatementPDF
	case strings.HasSuffix(base, ".xlsx") && strings.Contains(base, workbookMarker):
		return audit.DocStatementWorkbook
	default:
		return audit.DocOther
	}
}

// flatten copies a statement PDF into pdfsDir under its base name, appending
// a numeric suffix when the name is already taken.
func flatten(path, pdfsDir string) (string, error) {
	if err := os.MkdirAll(pdfsDir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	dest := filepath.Join(pdfsDir, base)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(pdfsDir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return dest, copyFile(path, dest)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
