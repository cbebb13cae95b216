// Package bundlestore implements the content+metadata store for
// submission bundles (component A): a local hierarchical filesystem
// store rooted at a configured directory, with advisory-locked,
// crash-safe metadata updates, adapted from original_source's
// FileSystemStorageAdapter and grounded in the teacher's local-disk
// storage idiom.
package bundlestore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anomaly-lab/jobctl/internal/apperr"
)

// AllowedSuffixes is the set of file extensions create/append accept.
var AllowedSuffixes = []string{".py", ".yaml", ".zip", ".tar.gz"}

// MaxFileSize is the per-file size ceiling (100 MiB).
const MaxFileSize = 100 * 1024 * 1024

// StoredFile describes one file already present in a bundle.
type StoredFile struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Metadata is the on-disk shape of metadata.json.
type Metadata struct {
	Files      []string               `json:"files"`
	UserID     string                 `json:"user_id"`
	Entrypoint string                 `json:"entrypoint"`
	ConfigFile string                 `json:"config_file"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
	UploadedAt map[string]time.Time   `json:"uploaded_at,omitempty"`
}

// Store is the component A capability interface. Implementations must be
// substitutable per spec.md §9; Local is the production backend.
type Store interface {
	Create(sid string, files map[string][]byte, meta Metadata) error
	Append(sid, filename string, payload []byte, userID string) error
	List(sid, userID string) ([]StoredFile, error)
	Exists(sid string) bool
	Metadata(sid string) (Metadata, error)
	ValidateEntrypoint(sid, path string) bool
	Logs(jid string, tail int) (string, error)
	// BundleDir returns the on-disk directory a submission's files live
	// in, for backends (like Local) that expose one; the Worker composes
	// the child command's paths from it.
	BundleDir(sid string) string
}

// Local is a local hierarchical store rooted at SubmissionsRoot/LogsRoot.
type Local struct {
	SubmissionsRoot string
	LogsRoot        string
}

func New(submissionsRoot, logsRoot string) *Local {
	return &Local{SubmissionsRoot: submissionsRoot, LogsRoot: logsRoot}
}

func (l *Local) submissionDir(sid string) string {
	return filepath.Join(l.SubmissionsRoot, sid)
}

func (l *Local) metadataPath(sid string) string {
	return filepath.Join(l.submissionDir(sid), "metadata.json")
}

// BundleDir returns the directory a submission's files are stored in.
func (l *Local) BundleDir(sid string) string {
	return l.submissionDir(sid)
}

// ValidateFilename enforces spec.md §3/§4.A/§7: basename only, no "..",
// accepted suffix, size within bound.
func ValidateFilename(name string, size int64) error {
	if name != filepath.Base(name) || strings.Contains(name, "/") {
		return apperr.New(apperr.KindInvalidName, fmt.Sprintf("filename %q must be a basename", name))
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return apperr.New(apperr.KindInvalidName, fmt.Sprintf("filename %q contains '..'", name))
		}
	}
	ok := false
	for _, suf := range AllowedSuffixes {
		if strings.HasSuffix(name, suf) {
			ok = true
			break
		}
	}
	if !ok {
		return apperr.New(apperr.KindInvalidName, fmt.Sprintf("filename %q has a disallowed suffix", name))
	}
	if size > MaxFileSize {
		return apperr.New(apperr.KindTooLarge, fmt.Sprintf("file %q exceeds %d bytes", name, MaxFileSize))
	}
	return nil
}

// Create writes every file in files then metadata.json last, so that a
// crash mid-write never leaves a bundle whose metadata references a file
// that isn't on disk.
func (l *Local) Create(sid string, files map[string][]byte, meta Metadata) error {
	dir := l.submissionDir(sid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.KindInternal, "create submission dir", err)
	}

	names := make([]string, 0, len(files))
	uploadedAt := make(map[string]time.Time, len(files))
	now := time.Now().UTC()
	for name, data := range files {
		if err := ValidateFilename(name, int64(len(data))); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return apperr.Wrap(apperr.KindInternal, "write submission file", err)
		}
		names = append(names, name)
		uploadedAt[name] = now
	}

	meta.Files = names
	meta.UploadedAt = uploadedAt
	return writeMetadataLocked(l.metadataPath(sid), meta)
}

// Append adds one file to an existing bundle under an exclusive advisory
// lock on metadata.json, per spec.md §4.A: payload lands in a temp file
// in the same directory, is renamed atomically into place, and only then
// is metadata.json rewritten and fsync'd. If the rename succeeds but the
// metadata rewrite fails, the rename is rolled back so no unlisted file
// is left on disk (spec.md §8 property 4).
func (l *Local) Append(sid, filename string, payload []byte, userID string) error {
	if err := ValidateFilename(filename, int64(len(payload))); err != nil {
		return err
	}
	if !l.Exists(sid) {
		return apperr.New(apperr.KindNotFound, fmt.Sprintf("submission %q not found", sid))
	}

	metaPath := l.metadataPath(sid)
	unlock, err := lockExclusive(metaPath)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "lock metadata", err)
	}
	defer unlock()

	meta, err := readMetadataFile(metaPath)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "submission not found", err)
	}
	if meta.UserID != userID {
		return apperr.New(apperr.KindNotOwner, "caller does not own this submission")
	}
	for _, f := range meta.Files {
		if f == filename {
			return apperr.New(apperr.KindDuplicate, fmt.Sprintf("filename %q already exists", filename))
		}
	}

	dir := l.submissionDir(sid)
	target := filepath.Join(dir, filename)
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "create temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "sync temp file", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return apperr.Wrap(apperr.KindInternal, "rename into place", err)
	}

	if meta.UploadedAt == nil {
		meta.UploadedAt = make(map[string]time.Time)
	}
	meta.Files = append(meta.Files, filename)
	meta.UploadedAt[filename] = time.Now().UTC()

	if err := writeMetadataFile(metaPath, meta); err != nil {
		// Roll back: the target file must not be listed without being
		// reflected in metadata, so remove what we just renamed in.
		os.Remove(target)
		return apperr.Wrap(apperr.KindInternal, "rewrite metadata", err)
	}
	return nil
}

// List returns the filenames recorded in metadata.json that still exist
// on disk, under a shared advisory lock.
func (l *Local) List(sid, userID string) ([]StoredFile, error) {
	metaPath := l.metadataPath(sid)
	unlock, err := lockShared(metaPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "submission not found", err)
	}
	defer unlock()

	meta, err := readMetadataFile(metaPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, "submission not found", err)
	}
	if meta.UserID != userID {
		return nil, apperr.New(apperr.KindNotOwner, "caller does not own this submission")
	}

	dir := l.submissionDir(sid)
	out := make([]StoredFile, 0, len(meta.Files))
	for _, name := range meta.Files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		out = append(out, StoredFile{
			Filename:   name,
			Size:       info.Size(),
			UploadedAt: meta.UploadedAt[name],
		})
	}
	return out, nil
}

func (l *Local) Exists(sid string) bool {
	_, err := os.Stat(l.submissionDir(sid))
	return err == nil
}

func (l *Local) Metadata(sid string) (Metadata, error) {
	meta, err := readMetadataFile(l.metadataPath(sid))
	if err != nil {
		return Metadata{}, apperr.Wrap(apperr.KindNotFound, "submission not found", err)
	}
	return meta, nil
}

// ValidateEntrypoint reports whether path is a safe basename ending in
// .py that exists inside the bundle.
func (l *Local) ValidateEntrypoint(sid, path string) bool {
	if path != filepath.Base(path) || !strings.HasSuffix(path, ".py") {
		return false
	}
	_, err := os.Stat(filepath.Join(l.submissionDir(sid), path))
	return err == nil
}

// Logs returns the text of LogsRoot/<jid>.log, or its last tail lines
// (counted by '\n') when tail > 0.
func (l *Local) Logs(jid string, tail int) (string, error) {
	path := filepath.Join(l.LogsRoot, jid+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNotFound, "log not found", err)
	}
	if tail <= 0 {
		return string(data), nil
	}
	return tailLines(data, tail), nil
}

func tailLines(data []byte, n int) string {
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return string(bytes.Join(lines, []byte("\n")))
}

func readMetadataFile(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()
	var meta Metadata
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&meta); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func writeMetadataFile(path string, meta Metadata) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(meta); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeMetadataLocked is used by Create, where no prior metadata.json
// exists yet to lock, so the file is opened (and thus locked) first.
func writeMetadataLocked(path string, meta Metadata) error {
	unlock, err := lockExclusive(path)
	if err != nil {
		return err
	}
	defer unlock()
	return writeMetadataFile(path, meta)
}
