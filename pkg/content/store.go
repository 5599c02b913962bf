package content

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nacht-org/quelle-sub001/internal/bytesize"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// StorageStats summarizes the Content Store's current disk usage.
type StorageStats struct {
	TotalSize    bytesize.ByteSize
	NovelCount   int
	ContentCount int
	AverageSize  bytesize.ByteSize
}

// FilesystemStore persists Novels, ChapterContent, and Assets under a
// single root directory, per the layout:
//
//	novels/<source_id>/<sha256(novel_url)>/novel.json
//	novels/<source_id>/<sha256(novel_url)>/volumes/<idx>/chapters/<sha256(chapter_url)>.json
//	assets/<sha256(novel_id)>/<asset_id>.bin
//	assets/<sha256(novel_id)>/index.json
type FilesystemStore struct {
	root string

	novelLocksMu sync.Mutex
	novelLocks   map[string]*sync.Mutex
}

// NewFilesystemStore creates a store rooted at root, creating the
// directory if necessary.
func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "create_store_root", err).WithPath(root)
	}
	return &FilesystemStore{root: root, novelLocks: make(map[string]*sync.Mutex)}, nil
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (s *FilesystemStore) novelDir(sourceID, novelURL string) string {
	return filepath.Join(s.root, "novels", sourceID, hashHex(novelURL))
}

func (s *FilesystemStore) novelJSONPath(sourceID, novelURL string) string {
	return filepath.Join(s.novelDir(sourceID, novelURL), "novel.json")
}

func (s *FilesystemStore) chapterJSONPath(sourceID, novelURL string, volumeIndex int, chapterURL string) string {
	return filepath.Join(
		s.novelDir(sourceID, novelURL),
		"volumes", strconv.Itoa(volumeIndex), "chapters",
		hashHex(chapterURL)+".json",
	)
}

func (s *FilesystemStore) assetDir(novelID NovelID) string {
	return filepath.Join(s.root, "assets", hashHex(string(novelID)))
}

// lockFor returns the mutex serializing mutations to a given novel
// directory. Locks for distinct novels are independent, so concurrent
// writes to different novels never block each other.
func (s *FilesystemStore) lockFor(key string) *sync.Mutex {
	s.novelLocksMu.Lock()
	defer s.novelLocksMu.Unlock()
	m, ok := s.novelLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.novelLocks[key] = m
	}
	return m
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial write.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// StoreNovel writes novel under sourceID, preserving any existing content
// index. This is the operation the content-index-preservation invariant is
// built around: re-scraping a novel to pick up new chapters must never
// lose the record of previously downloaded content.
func (s *FilesystemStore) StoreNovel(sourceID string, novel Novel) (NovelID, error) {
	novelID := NewNovelID(sourceID, novel.URL)
	key := s.novelDir(sourceID, novel.URL)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.novelJSONPath(sourceID, novel.URL)

	index := newContentIndex()
	if existing, err := os.ReadFile(path); err == nil {
		if rec, err := unmarshalNovelRecord(existing); err == nil {
			index = rec.RecordMetadata.ContentIndex
		}
	}

	rec := novelRecord{
		StorageNovel: novelToStorage(novel),
		RecordMetadata: recordMetadata{
			ContentIndex: index,
			StoredAt:     time.Now().UTC(),
		},
	}

	data, err := marshalNovelRecord(rec)
	if err != nil {
		return "", quelleerr.Wrap(quelleerr.Serialization, "marshal_novel", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "write_novel", err).WithPath(path)
	}

	return novelID, nil
}

// GetNovel reads back the Novel record for novelID, or (nil, nil) if absent.
func (s *FilesystemStore) GetNovel(novelID NovelID) (*Novel, error) {
	sourceID, novelURL := novelID.Split()
	path := s.novelJSONPath(sourceID, novelURL)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "read_novel", err).WithPath(path)
	}

	rec, err := unmarshalNovelRecord(data)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Serialization, "unmarshal_novel", err).WithPath(path)
	}

	novel := novelFromStorage(rec.StorageNovel)
	return &novel, nil
}

// StoreChapterContent writes the chapter content file and updates the
// owning novel's content index in the same locked section, so a concurrent
// reader never sees a content file without a matching index entry for long.
func (s *FilesystemStore) StoreChapterContent(novelID NovelID, volumeIndex int, chapterURL string, content ChapterContent) error {
	sourceID, novelURL := novelID.Split()
	key := s.novelDir(sourceID, novelURL)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	chapterPath := s.chapterJSONPath(sourceID, novelURL, volumeIndex, chapterURL)
	data, err := marshalChapterContent(content)
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "marshal_chapter_content", err)
	}
	if err := writeAtomic(chapterPath, data); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_chapter_content", err).WithPath(chapterPath)
	}

	novelPath := s.novelJSONPath(sourceID, novelURL)
	raw, err := os.ReadFile(novelPath)
	if err != nil {
		return quelleerr.Wrap(quelleerr.IO, "read_novel_for_index_update", err).WithPath(novelPath)
	}
	rec, err := unmarshalNovelRecord(raw)
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "unmarshal_novel_for_index_update", err).WithPath(novelPath)
	}

	rec.RecordMetadata.ContentIndex.markStored(chapterURL, int64(len(content.Data)), time.Now().UTC())

	newData, err := marshalNovelRecord(rec)
	if err != nil {
		return quelleerr.Wrap(quelleerr.Serialization, "marshal_novel_for_index_update", err)
	}
	if err := writeAtomic(novelPath, newData); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "write_novel_for_index_update", err).WithPath(novelPath)
	}

	return nil
}

// GetChapterContent reads back the content for a single chapter, or
// (nil, nil) if no content has been stored for it.
func (s *FilesystemStore) GetChapterContent(novelID NovelID, volumeIndex int, chapterURL string) (*ChapterContent, error) {
	sourceID, novelURL := novelID.Split()
	path := s.chapterJSONPath(sourceID, novelURL, volumeIndex, chapterURL)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "read_chapter_content", err).WithPath(path)
	}

	content, err := unmarshalChapterContent(data)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Serialization, "unmarshal_chapter_content", err).WithPath(path)
	}
	return &content, nil
}

// ListChapters enumerates novelID's volumes/chapters, annotated with
// whether each has stored content.
func (s *FilesystemStore) ListChapters(novelID NovelID) ([]ChapterInfo, error) {
	sourceID, novelURL := novelID.Split()
	path := s.novelJSONPath(sourceID, novelURL)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "read_novel_for_list_chapters", err).WithPath(path)
	}
	rec, err := unmarshalNovelRecord(data)
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.Serialization, "unmarshal_novel_for_list_chapters", err).WithPath(path)
	}

	var infos []ChapterInfo
	for _, v := range rec.StorageNovel.Volumes {
		for _, c := range v.Chapters {
			infos = append(infos, ChapterInfo{
				VolumeIndex: v.Index,
				Chapter:     chapterFromStorage(c),
				HasContent:  rec.RecordMetadata.ContentIndex.HasContent(c.URL),
			})
		}
	}
	return infos, nil
}

// ListNovels walks the novels directory tree, applying filter and
// returning a listing summary per match.
func (s *FilesystemStore) ListNovels(filter NovelFilter) ([]NovelSummary, error) {
	novelsRoot := filepath.Join(s.root, "novels")
	sourceDirs, err := os.ReadDir(novelsRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, quelleerr.Wrap(quelleerr.IO, "list_novels", err).WithPath(novelsRoot)
	}

	var summaries []NovelSummary
	for _, sourceDir := range sourceDirs {
		if !sourceDir.IsDir() {
			continue
		}
		sourceID := sourceDir.Name()
		if !filter.matchesSource(sourceID) {
			continue
		}

		hashDirs, err := os.ReadDir(filepath.Join(novelsRoot, sourceID))
		if err != nil {
			continue
		}
		for _, hd := range hashDirs {
			if !hd.IsDir() {
				continue
			}
			novelPath := filepath.Join(novelsRoot, sourceID, hd.Name(), "novel.json")
			data, err := os.ReadFile(novelPath)
			if err != nil {
				continue
			}
			rec, err := unmarshalNovelRecord(data)
			if err != nil {
				continue
			}
			novel := novelFromStorage(rec.StorageNovel)
			if !filter.matches(sourceID, novel) {
				continue
			}

			total := 0
			for _, v := range novel.Volumes {
				total += len(v.Chapters)
			}

			summaries = append(summaries, NovelSummary{
				NovelID:       NewNovelID(sourceID, novel.URL),
				Title:         novel.Title,
				Authors:       novel.Authors,
				Status:        novel.Status,
				TotalChapters: total,
				StoredCount:   len(rec.RecordMetadata.ContentIndex.Chapters),
			})
		}
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Title < summaries[j].Title })
	return summaries, nil
}

// DeleteNovel removes novelID's directory tree and its asset directory.
func (s *FilesystemStore) DeleteNovel(novelID NovelID) error {
	sourceID, novelURL := novelID.Split()
	dir := s.novelDir(sourceID, novelURL)
	if err := os.RemoveAll(dir); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "delete_novel", err).WithPath(dir)
	}
	if err := os.RemoveAll(s.assetDir(novelID)); err != nil {
		return quelleerr.Wrap(quelleerr.IO, "delete_novel_assets", err)
	}
	return nil
}

// assetIndexEntry is one entry of an asset directory's index.json.
type assetIndexEntry struct {
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// StoreAsset streams reader to disk under novelID's asset directory and
// records it in that directory's index.json, filling in Size from the
// number of bytes actually written.
func (s *FilesystemStore) StoreAsset(novelID NovelID, assetURL, mimeType string, reader io.Reader) (AssetID, error) {
	dir := s.assetDir(novelID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "create_asset_dir", err).WithPath(dir)
	}

	assetID := AssetID(uuid.NewString())
	blobPath := filepath.Join(dir, string(assetID)+".bin")

	f, err := os.Create(blobPath)
	if err != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "create_asset_blob", err).WithPath(blobPath)
	}
	written, err := io.Copy(f, reader)
	closeErr := f.Close()
	if err != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "write_asset_blob", err).WithPath(blobPath)
	}
	if closeErr != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "close_asset_blob", closeErr).WithPath(blobPath)
	}

	indexPath := filepath.Join(dir, "index.json")
	index := make(map[string]assetIndexEntry)
	if raw, err := os.ReadFile(indexPath); err == nil {
		_ = json.Unmarshal(raw, &index)
	}
	index[string(assetID)] = assetIndexEntry{URL: assetURL, MIMEType: mimeType, Size: written}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return "", quelleerr.Wrap(quelleerr.Serialization, "marshal_asset_index", err)
	}
	if err := writeAtomic(indexPath, data); err != nil {
		return "", quelleerr.Wrap(quelleerr.IO, "write_asset_index", err).WithPath(indexPath)
	}

	return assetID, nil
}

// CleanupDanglingData removes content files whose chapter URL is no longer
// present in novelID's chapter list, decrementing the content index for
// each removed entry.
func (s *FilesystemStore) CleanupDanglingData(novelID NovelID) (CleanupReport, error) {
	sourceID, novelURL := novelID.Split()
	key := s.novelDir(sourceID, novelURL)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	path := s.novelJSONPath(sourceID, novelURL)
	data, err := os.ReadFile(path)
	if err != nil {
		return CleanupReport{}, quelleerr.Wrap(quelleerr.IO, "read_novel_for_cleanup", err).WithPath(path)
	}
	rec, err := unmarshalNovelRecord(data)
	if err != nil {
		return CleanupReport{}, quelleerr.Wrap(quelleerr.Serialization, "unmarshal_novel_for_cleanup", err).WithPath(path)
	}

	liveURLs := make(map[string]struct{})
	for _, v := range rec.StorageNovel.Volumes {
		for _, c := range v.Chapters {
			liveURLs[c.URL] = struct{}{}
		}
	}

	report := CleanupReport{}
	for chapterURL := range rec.RecordMetadata.ContentIndex.Chapters {
		if _, live := liveURLs[chapterURL]; live {
			continue
		}

		removed := false
		for _, v := range rec.StorageNovel.Volumes {
			candidate := s.chapterJSONPath(sourceID, novelURL, v.Index, chapterURL)
			if err := os.Remove(candidate); err == nil {
				removed = true
			}
		}
		if !removed {
			for volIdx := 0; volIdx < 64; volIdx++ {
				candidate := s.chapterJSONPath(sourceID, novelURL, volIdx, chapterURL)
				if err := os.Remove(candidate); err == nil {
					removed = true
					break
				}
			}
		}

		rec.RecordMetadata.ContentIndex.markRemoved(chapterURL)
		report.RemovedFiles++
		if !removed {
			report.Errors = append(report.Errors, "content file not found for "+chapterURL)
		}
	}

	newData, err := marshalNovelRecord(rec)
	if err != nil {
		return report, quelleerr.Wrap(quelleerr.Serialization, "marshal_novel_after_cleanup", err)
	}
	if err := writeAtomic(path, newData); err != nil {
		return report, quelleerr.Wrap(quelleerr.IO, "write_novel_after_cleanup", err).WithPath(path)
	}

	return report, nil
}

// GetStorageStats walks the store computing aggregate size and count
// figures.
func (s *FilesystemStore) GetStorageStats() (StorageStats, error) {
	var stats StorageStats

	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		stats.TotalSize += bytesize.ByteSize(info.Size())
		if strings.HasSuffix(path, "novel.json") {
			stats.NovelCount++
		}
		if strings.Contains(path, string(filepath.Separator)+"chapters"+string(filepath.Separator)) {
			stats.ContentCount++
		}
		return nil
	})
	if err != nil {
		return stats, quelleerr.Wrap(quelleerr.IO, "storage_stats_walk", err)
	}

	if stats.ContentCount > 0 {
		stats.AverageSize = stats.TotalSize / bytesize.ByteSize(stats.ContentCount)
	}
	return stats, nil
}
