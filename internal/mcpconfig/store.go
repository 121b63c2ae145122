package mcpconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/michaelbrown/toolselector/internal/logging"
)

// DefaultBackupSuffix is appended to the primary path when no backup path is given.
const DefaultBackupSuffix = ".backup"

// ErrCorruptDocument is returned when a configuration file is not a valid document.
var ErrCorruptDocument = errors.New("corrupt configuration document")

// Store reads and writes the primary configuration file and its backup.
type Store struct {
	primaryPath string
	backupPath  string
	log         *bolt.Logger

	// digest of the primary file as last read or written by this store
	primaryDigest [sha256.Size]byte
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store.
func WithLogger(l *bolt.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// NewStore creates a store for primaryPath. An empty backupPath defaults to
// primaryPath + DefaultBackupSuffix.
func NewStore(primaryPath, backupPath string, opts ...Option) *Store {
	if backupPath == "" {
		backupPath = primaryPath + DefaultBackupSuffix
	}
	s := &Store{
		primaryPath: primaryPath,
		backupPath:  backupPath,
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrimaryPath returns the path of the live configuration file.
func (s *Store) PrimaryPath() string { return s.primaryPath }

// BackupPath returns the path of the backup file.
func (s *Store) BackupPath() string { return s.backupPath }

// ReadPrimary reads the configuration file. A missing file yields an empty
// document; a file that cannot be parsed is an error wrapping ErrCorruptDocument.
func (s *Store) ReadPrimary() (*Document, error) {
	doc, data, err := readDocument(s.primaryPath)
	if err != nil {
		s.log.Error().Str("path", s.primaryPath).Err(err).Msg("error reading configuration file")
		return nil, err
	}
	if data == nil {
		s.log.Warn().Str("path", s.primaryPath).Msg("configuration file not found")
	}
	s.primaryDigest = sha256.Sum256(data)
	return doc, nil
}

// WritePrimary replaces the configuration file with doc.
func (s *Store) WritePrimary(doc *Document) error {
	data, err := writeDocument(s.primaryPath, doc)
	if err != nil {
		s.log.Error().Str("path", s.primaryPath).Err(err).Msg("error writing configuration file")
		return err
	}
	s.primaryDigest = sha256.Sum256(data)
	s.log.Info().Str("path", s.primaryPath).Msg("configuration written")
	return nil
}

// PrimaryChanged reports whether the configuration file on disk differs from
// what this store last read or wrote.
func (s *Store) PrimaryChanged() (bool, error) {
	data, err := os.ReadFile(s.primaryPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("reading %s: %w", s.primaryPath, err)
	}
	return sha256.Sum256(data) != s.primaryDigest, nil
}

// CreatePrimary writes an empty document unless the configuration file already exists.
func (s *Store) CreatePrimary() (bool, error) {
	if _, err := os.Stat(s.primaryPath); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking %s: %w", s.primaryPath, err)
	}
	if err := s.WritePrimary(NewDocument()); err != nil {
		return false, err
	}
	return true, nil
}

// ReadBackup reads the backup file. It never fails: a missing file is an
// empty document and a corrupt one is an empty document plus a warning.
func (s *Store) ReadBackup() (*Document, Warnings) {
	doc, data, err := readDocument(s.backupPath)
	if err != nil {
		s.log.Warn().Str("path", s.backupPath).Err(err).Msg("invalid backup file, using empty backup")
		return NewDocument(), Warnings{{Op: "read backup", Path: s.backupPath, Err: err}}
	}
	if data == nil {
		s.log.Debug().Str("path", s.backupPath).Msg("backup file not found")
	}
	return doc, nil
}

// WriteBackup replaces the backup file with doc. Failures are logged and
// returned as warnings.
func (s *Store) WriteBackup(doc *Document) Warnings {
	if _, err := writeDocument(s.backupPath, doc); err != nil {
		s.log.Error().Str("path", s.backupPath).Err(err).Msg("error writing backup file")
		return Warnings{{Op: "write backup", Path: s.backupPath, Err: err}}
	}
	s.log.Info().Str("path", s.backupPath).Msg("backup written")
	return nil
}

// BackupTool stores cfg under name in the backup file, replacing any earlier entry.
func (s *Store) BackupTool(name string, cfg ToolConfig) Warnings {
	backup, warnings := s.ReadBackup()
	if len(warnings) > 0 {
		warnings = append(warnings, s.quarantineBackup()...)
	}
	backup.Servers.Set(name, cfg.Clone())
	warnings = append(warnings, s.WriteBackup(backup)...)
	s.log.Info().Str("tool", name).Msg("tool backed up")
	return warnings
}

// RestoreTool removes name from the backup file and returns its configuration.
// It reports false when the backup holds no such tool.
func (s *Store) RestoreTool(name string) (ToolConfig, bool, Warnings) {
	backup, warnings := s.ReadBackup()

	cfg, ok := backup.Servers.Get(name)
	if !ok {
		s.log.Warn().Str("tool", name).Msg("tool not found in backup")
		return ToolConfig{}, false, warnings
	}

	backup.Servers.Delete(name)
	warnings = append(warnings, s.WriteBackup(backup)...)
	s.log.Info().Str("tool", name).Msg("tool restored from backup")
	return cfg, true, warnings
}

// quarantineBackup copies an unreadable backup file aside before it gets
// overwritten, so its contents can still be recovered by hand.
func (s *Store) quarantineBackup() Warnings {
	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		return nil
	}
	dest := s.backupPath + ".corrupt"
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return Warnings{{Op: "save corrupt backup", Path: dest, Err: err}}
	}
	s.log.Warn().Str("path", dest).Msg("saved unreadable backup file")
	return nil
}

// readDocument returns the parsed document and the raw bytes. Missing files
// return an empty document and nil bytes.
func readDocument(path string) (*Document, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewDocument(), nil, nil
		}
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, path, err)
	}
	return doc, data, nil
}

// Encode renders doc the way it is stored on disk: two-space indentation and
// a trailing newline.
func Encode(doc *Document) ([]byte, error) {
	if doc == nil {
		doc = NewDocument()
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	return buf.Bytes(), nil
}

// writeDocument writes doc to path atomically (temp file in the same
// directory, then rename). The existing file mode is kept.
func writeDocument(path string, doc *Document) ([]byte, error) {
	data, err := Encode(doc)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("syncing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("replacing %s: %w", path, err)
	}
	return data, nil
}
