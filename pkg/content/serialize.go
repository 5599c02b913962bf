package content

import (
	"encoding/json"
	"time"
)

// Storage* types mirror the guest-facing Novel/Volume/Chapter/Metadata
// types but are safe to marshal: enum values persist as strings so the
// on-disk format tolerates schema evolution (new statuses, renamed
// namespaces) without breaking old records.
//
// StorageNovel's domain metadata tuples serialize under "metadata_entries"
// rather than "metadata" because the on-disk novel record wraps a
// StorageNovel together with a record-level "metadata" object holding the
// content index and stored-at timestamp; giving each its own JSON key
// avoids the collision.

type StorageChapter struct {
	Title     string  `json:"title"`
	Index     int     `json:"index"`
	URL       string  `json:"url"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

type StorageVolume struct {
	Name     string           `json:"name"`
	Index    int              `json:"index"`
	Chapters []StorageChapter `json:"chapters"`
}

type StorageMetadata struct {
	Name   string      `json:"name"`
	Value  string      `json:"value"`
	NS     string      `json:"ns"`
	Others [][2]string `json:"others,omitempty"`
}

type StorageNovel struct {
	URL             string            `json:"url"`
	Authors         []string          `json:"authors"`
	Title           string            `json:"title"`
	Cover           *string           `json:"cover,omitempty"`
	Description     []string          `json:"description"`
	Volumes         []StorageVolume   `json:"volumes"`
	MetadataEntries []StorageMetadata `json:"metadata_entries"`
	Status          string            `json:"status"`
	Langs           []string          `json:"langs"`
}

type StorageChapterContent struct {
	Data string `json:"data"`
}

func chapterToStorage(c Chapter) StorageChapter {
	return StorageChapter{Title: c.Title, Index: c.Index, URL: c.URL, UpdatedAt: c.UpdatedAt}
}

func chapterFromStorage(c StorageChapter) Chapter {
	return Chapter{Title: c.Title, Index: c.Index, URL: c.URL, UpdatedAt: c.UpdatedAt}
}

func volumeToStorage(v Volume) StorageVolume {
	chapters := make([]StorageChapter, len(v.Chapters))
	for i, c := range v.Chapters {
		chapters[i] = chapterToStorage(c)
	}
	return StorageVolume{Name: v.Name, Index: v.Index, Chapters: chapters}
}

func volumeFromStorage(v StorageVolume) Volume {
	chapters := make([]Chapter, len(v.Chapters))
	for i, c := range v.Chapters {
		chapters[i] = chapterFromStorage(c)
	}
	return Volume{Name: v.Name, Index: v.Index, Chapters: chapters}
}

func metadataToStorage(m Metadata) StorageMetadata {
	others := make([][2]string, len(m.Others))
	for i, o := range m.Others {
		others[i] = [2]string{o.Key, o.Value}
	}
	return StorageMetadata{Name: m.Name, Value: m.Value, NS: string(m.Namespace), Others: others}
}

func metadataFromStorage(m StorageMetadata) Metadata {
	others := make([]KV, len(m.Others))
	for i, o := range m.Others {
		others[i] = KV{Key: o[0], Value: o[1]}
	}
	ns := Namespace(m.NS)
	if ns != NamespaceDC && ns != NamespaceOPF {
		ns = NamespaceDC
	}
	return Metadata{Name: m.Name, Value: m.Value, Namespace: ns, Others: others}
}

func novelStatusToStorage(s NovelStatus) string {
	switch s {
	case StatusOngoing, StatusHiatus, StatusCompleted, StatusStub, StatusDropped:
		return string(s)
	default:
		return string(StatusUnknown)
	}
}

func novelStatusFromStorage(s string) NovelStatus {
	switch NovelStatus(s) {
	case StatusOngoing, StatusHiatus, StatusCompleted, StatusStub, StatusDropped:
		return NovelStatus(s)
	default:
		return StatusUnknown
	}
}

func novelToStorage(n Novel) StorageNovel {
	volumes := make([]StorageVolume, len(n.Volumes))
	for i, v := range n.Volumes {
		volumes[i] = volumeToStorage(v)
	}
	meta := make([]StorageMetadata, len(n.Metadata))
	for i, m := range n.Metadata {
		meta[i] = metadataToStorage(m)
	}
	return StorageNovel{
		URL:             n.URL,
		Authors:         n.Authors,
		Title:           n.Title,
		Cover:           n.Cover,
		Description:     n.Description,
		Volumes:         volumes,
		MetadataEntries: meta,
		Status:          novelStatusToStorage(n.Status),
		Langs:           n.Langs,
	}
}

func novelFromStorage(s StorageNovel) Novel {
	volumes := make([]Volume, len(s.Volumes))
	for i, v := range s.Volumes {
		volumes[i] = volumeFromStorage(v)
	}
	meta := make([]Metadata, len(s.MetadataEntries))
	for i, m := range s.MetadataEntries {
		meta[i] = metadataFromStorage(m)
	}
	return Novel{
		URL:         s.URL,
		Authors:     s.Authors,
		Title:       s.Title,
		Cover:       s.Cover,
		Description: s.Description,
		Volumes:     volumes,
		Metadata:    meta,
		Status:      novelStatusFromStorage(s.Status),
		Langs:       s.Langs,
	}
}

// recordMetadata is the record-level wrapper persisted alongside a
// StorageNovel: the content index and the record's own stored-at
// timestamp. This is what store_novel must preserve across refreshes.
type recordMetadata struct {
	ContentIndex ContentIndex `json:"content_index"`
	StoredAt     time.Time    `json:"stored_at"`
}

// novelRecord is the full on-disk shape of novel.json.
type novelRecord struct {
	StorageNovel
	RecordMetadata recordMetadata `json:"metadata"`
}

func marshalNovelRecord(rec novelRecord) ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

func unmarshalNovelRecord(data []byte) (novelRecord, error) {
	var rec novelRecord
	rec.RecordMetadata.ContentIndex = newContentIndex()
	err := json.Unmarshal(data, &rec)
	return rec, err
}

func marshalChapterContent(c ChapterContent) ([]byte, error) {
	return json.MarshalIndent(StorageChapterContent{Data: c.Data}, "", "  ")
}

func unmarshalChapterContent(data []byte) (ChapterContent, error) {
	var s StorageChapterContent
	if err := json.Unmarshal(data, &s); err != nil {
		return ChapterContent{}, err
	}
	return ChapterContent{Data: s.Data}, nil
}
