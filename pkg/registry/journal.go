package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nacht-org/quelle-sub001/internal/logger"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// journalDocument is the on-disk shape of registry.json: extension id ->
// installed record, plus a schema version and last-updated timestamp.
type journalDocument struct {
	Version     string                        `json:"version"`
	LastUpdated time.Time                     `json:"last_updated"`
	Extensions  map[string]InstalledExtension `json:"extensions"`
}

func newJournalDocument() journalDocument {
	return journalDocument{Version: "1", Extensions: make(map[string]InstalledExtension)}
}

// journalFailer lets tests simulate a failed rename during a journal
// mutation, to exercise the rollback path without touching the real
// filesystem's failure modes.
type journalFailer func() error

// Journal is the Registry's persisted installation record: a single JSON
// document at <install_dir>/registry.json with a parallel .backup file.
// Every successful mutation writes the new document via temp-file + rename
// and keeps the prior document as .backup; a failed write rolls back from
// .backup, both on disk and in memory.
type Journal struct {
	mu       sync.RWMutex
	path     string
	backup   string
	doc      journalDocument
	failNext journalFailer // test hook; nil in production
}

// OpenJournal loads (or initializes) the journal at <installDir>/registry.json.
func OpenJournal(installDir string) (*Journal, error) {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "open_journal_mkdir", err).WithPath(installDir)
	}
	j := &Journal{
		path:   filepath.Join(installDir, "registry.json"),
		backup: filepath.Join(installDir, "registry.json.backup"),
	}

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		j.doc = newJournalDocument()
		return j, nil
	}
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "read_journal", err).WithPath(j.path)
	}

	doc, perr := parseJournalDocument(data)
	if perr != nil {
		return j.recoverFromBackup(perr)
	}
	j.doc = doc
	return j, nil
}

func parseJournalDocument(data []byte) (journalDocument, error) {
	var doc journalDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return journalDocument{}, err
	}
	if doc.Extensions == nil {
		doc.Extensions = make(map[string]InstalledExtension)
	}
	return doc, nil
}

func (j *Journal) recoverFromBackup(cause error) (*Journal, error) {
	backupData, berr := os.ReadFile(j.backup)
	if berr != nil {
		return nil, quelleerr.Wrap(quelleerr.CorruptedRegistry, "recover_journal", cause).WithPath(j.path)
	}
	doc, perr := parseJournalDocument(backupData)
	if perr != nil {
		return nil, quelleerr.Wrap(quelleerr.CorruptedRegistry, "recover_journal_backup", perr).WithPath(j.backup)
	}
	j.doc = doc
	logger.Warn("registry journal corrupted, recovered from backup", logger.Err(cause))
	return j, nil
}

// Get returns the installed record for extID, or (zero, false).
func (j *Journal) Get(extID string) (InstalledExtension, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.doc.Extensions[extID]
	return rec, ok
}

// List returns every installed record, unordered.
func (j *Journal) List() []InstalledExtension {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]InstalledExtension, 0, len(j.doc.Extensions))
	for _, rec := range j.doc.Extensions {
		out = append(out, rec)
	}
	return out
}

// Put atomically records ext under its UUID, per the journal atomicity
// steps: backup current document, apply mutation, write+rename, and on
// any failure reload from backup (on disk and in memory).
func (j *Journal) Put(ext InstalledExtension) error {
	return j.mutate(func(doc *journalDocument) {
		doc.Extensions[ext.UUID] = ext
	})
}

// Remove atomically drops extID's record, if present.
func (j *Journal) Remove(extID string) error {
	return j.mutate(func(doc *journalDocument) {
		delete(doc.Extensions, extID)
	})
}

// mutate implements the atomic-journal-update algorithm: best-effort
// backup of the current file, apply fn to an in-memory copy, serialize,
// write to a temp file, rename over the live file. Any failure from the
// write/rename step reloads both the in-memory document and (if possible)
// the on-disk file from .backup, so a failed mutation is invisible.
func (j *Journal) mutate(fn func(doc *journalDocument)) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.backupCurrentFile()

	next := cloneJournalDocument(j.doc)
	fn(&next)
	next.LastUpdated = time.Now().UTC()

	if err := j.writeAndRename(next); err != nil {
		j.rollbackLocked(err)
		return err
	}

	j.doc = next
	return nil
}

func cloneJournalDocument(doc journalDocument) journalDocument {
	clone := journalDocument{Version: doc.Version, LastUpdated: doc.LastUpdated, Extensions: make(map[string]InstalledExtension, len(doc.Extensions))}
	for k, v := range doc.Extensions {
		clone.Extensions[k] = v
	}
	return clone
}

// backupCurrentFile copies the current registry.json to registry.json.backup.
// Best effort: a missing source file (first-ever write) is not an error.
func (j *Journal) backupCurrentFile() {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return
	}
	_ = os.WriteFile(j.backup, data, 0o644)
}

func (j *Journal) writeAndRename(doc journalDocument) error {
	if j.failNext != nil {
		fail := j.failNext
		j.failNext = nil
		if err := fail(); err != nil {
			return quelleerr.Wrap(quelleerr.IO, "write_journal", err).WithPath(j.path)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "marshal_journal", err)
	}

	tmpPath := j.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_journal_tmp", err).WithPath(tmpPath)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		os.Remove(tmpPath)
		return quelleerr.Wrap(quelleerr.IO, "rename_journal", err).WithPath(j.path)
	}
	return nil
}

// rollbackLocked restores the in-memory document (and, best-effort, the
// on-disk file) from registry.json.backup after a failed mutation. Callers
// must hold j.mu.
func (j *Journal) rollbackLocked(cause error) {
	logger.Warn("registry journal write failed, rolling back", logger.Err(cause))

	data, err := os.ReadFile(j.backup)
	if err != nil {
		return
	}
	doc, err := parseJournalDocument(data)
	if err != nil {
		return
	}
	j.doc = doc
	_ = os.WriteFile(j.path, data, 0o644)
}

// simulateRenameFailure arranges for the next mutate() call to fail as if
// the temp-file rename step had failed, for exercising the rollback path.
func (j *Journal) simulateRenameFailure(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failNext = func() error { return err }
}
