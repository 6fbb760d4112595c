package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kalambet/dfpfetch/internal/audit"
)

// Layout is one ticker job's output directory tree, rooted at
// <output root>/<TICKER>.
type Layout struct {
	Root string
}

// NewLayout returns the layout for one ticker under the output root.
func NewLayout(outputRoot, ticker string) Layout {
	return Layout{Root: filepath.Join(outputRoot, ticker)}
}

func (l Layout) DownloadsDir() string { return filepath.Join(l.Root, "downloads") }
func (l Layout) ExtractedDir() string { return filepath.Join(l.Root, "extracted") }
func (l Layout) PDFsDir() string      { return filepath.Join(l.Root, "pdfs") }
func (l Layout) ResultPath() string   { return filepath.Join(l.Root, "result.json") }

// Prepare creates the directory tree. Re-running the same ticker is
// expected: extracted/ and pdfs/ are recreated empty so no stale files from
// an interrupted run survive, while downloads/ and any previous result.json
// stay in place for overwrite.
func (l Layout) Prepare() error {
	for _, dir := range []string{l.ExtractedDir(), l.PDFsDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clearing %s: %w", dir, err)
		}
	}
	for _, dir := range []string{l.DownloadsDir(), l.ExtractedDir(), l.PDFsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// StoreDownload moves a completed download into downloads/ under sourceName
// and records its size and checksum. The source file is consumed.
func (l Layout) StoreDownload(srcPath, sourceName string) (audit.Artifact, error) {
	if sourceName == "" {
		sourceName = filepath.Base(srcPath)
	}
	dest := filepath.Join(l.DownloadsDir(), sourceName)
	if err := moveFile(srcPath, dest); err != nil {
		return audit.Artifact{}, fmt.Errorf("storing download %s: %w", sourceName, err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return audit.Artifact{}, err
	}
	sum, err := checksum(dest)
	if err != nil {
		return audit.Artifact{}, err
	}
	return audit.Artifact{
		SourceName: sourceName,
		Path:       dest,
		Size:       info.Size(),
		Checksum:   sum,
	}, nil
}

// WriteResult renders the audit record to result.json. The record is written
// to a temporary file first so an interrupt never leaves a truncated record.
// The ticker directory is created if missing; a job that failed before
// Prepare still gets its record.
func (l Layout) WriteResult(rec audit.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding audit record: %w", err)
	}
	if err := os.MkdirAll(l.Root, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(l.Root, ".result-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), l.ResultPath()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing audit record: %w", err)
	}
	return nil
}

// moveFile renames src to dest, falling back to copy-and-remove when the
// rename crosses filesystems.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
