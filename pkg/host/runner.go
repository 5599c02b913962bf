package host

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero/api"

	"github.com/nacht-org/quelle-sub001/pkg/content"
	"github.com/nacht-org/quelle-sub001/pkg/quelleerr"
)

// Runner is bound to exactly one instantiated guest module and is valid for
// one logical scrape call. Calling a second typed operation on the same
// Runner is allowed (the four exports are independent functions on the same
// instance) but Runners must never be shared across goroutines running
// concurrent scrape operations for the same extension: construct one per
// operation via Host.NewRunner instead.
type Runner struct {
	mod api.Module
}

// Close releases the underlying module instance.
func (r *Runner) Close(ctx context.Context) error {
	return r.mod.Close(ctx)
}

// Meta calls the guest's exported meta() function.
func (r *Runner) Meta(ctx context.Context) (SourceMeta, error) {
	data, err := callNoArgs(ctx, r.mod, "meta")
	if err != nil {
		return SourceMeta{}, err
	}
	var meta SourceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return SourceMeta{}, quelleerr.Wrap(quelleerr.ExtensionABIViolation, "parse_meta", err)
	}
	return meta, nil
}

// FetchNovelInfo calls the guest's fetch_novel_info(url) export.
func (r *Runner) FetchNovelInfo(ctx context.Context, novelURL string) (content.Novel, error) {
	payload, err := json.Marshal(novelURL)
	if err != nil {
		return content.Novel{}, quelleerr.Wrap(quelleerr.Serialization, "marshal_novel_url", err)
	}
	data, err := callWithBytes(ctx, r.mod, "fetch_novel_info", payload)
	if err != nil {
		return content.Novel{}, err
	}
	var result novelResult
	if err := json.Unmarshal(data, &result); err != nil {
		return content.Novel{}, quelleerr.Wrap(quelleerr.ExtensionABIViolation, "parse_fetch_novel_info", err)
	}
	if result.Err != nil {
		return content.Novel{}, quelleerr.Wrap(quelleerr.ExtensionErrorCode, "fetch_novel_info", result.Err).WithPath(novelURL)
	}
	if result.Novel == nil {
		return content.Novel{}, quelleerr.New(quelleerr.ExtensionABIViolation, "fetch_novel_info_empty_result").WithPath(novelURL)
	}
	return *result.Novel, nil
}

// FetchChapter calls the guest's fetch_chapter(url) export.
func (r *Runner) FetchChapter(ctx context.Context, chapterURL string) (content.ChapterContent, error) {
	payload, err := json.Marshal(chapterURL)
	if err != nil {
		return content.ChapterContent{}, quelleerr.Wrap(quelleerr.Serialization, "marshal_chapter_url", err)
	}
	data, err := callWithBytes(ctx, r.mod, "fetch_chapter", payload)
	if err != nil {
		return content.ChapterContent{}, err
	}
	var result chapterResult
	if err := json.Unmarshal(data, &result); err != nil {
		return content.ChapterContent{}, quelleerr.Wrap(quelleerr.ExtensionABIViolation, "parse_fetch_chapter", err)
	}
	if result.Err != nil {
		return content.ChapterContent{}, quelleerr.Wrap(quelleerr.ExtensionErrorCode, "fetch_chapter", result.Err).WithPath(chapterURL)
	}
	if result.Content == nil {
		return content.ChapterContent{}, quelleerr.New(quelleerr.ExtensionABIViolation, "fetch_chapter_empty_result").WithPath(chapterURL)
	}
	return *result.Content, nil
}

// SupportsSimpleSearch reports whether the guest exports simple_search.
func (r *Runner) SupportsSimpleSearch() bool {
	return r.mod.ExportedFunction("simple_search") != nil
}

// SimpleSearch calls the guest's optional simple_search(query) export. The
// caller should check SupportsSimpleSearch (or the capability reported by
// Meta) before calling this, since not every extension implements it.
func (r *Runner) SimpleSearch(ctx context.Context, query SearchQuery) (SearchResult, error) {
	if !r.SupportsSimpleSearch() {
		return SearchResult{}, quelleerr.New(quelleerr.ExtensionABIViolation, "simple_search_unsupported")
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return SearchResult{}, quelleerr.Wrap(quelleerr.Serialization, "marshal_search_query", err)
	}
	data, err := callWithBytes(ctx, r.mod, "simple_search", payload)
	if err != nil {
		return SearchResult{}, err
	}
	var envelope searchResultEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return SearchResult{}, quelleerr.Wrap(quelleerr.ExtensionABIViolation, "parse_simple_search", err)
	}
	if envelope.Err != nil {
		return SearchResult{}, quelleerr.Wrap(quelleerr.ExtensionErrorCode, "simple_search", envelope.Err)
	}
	if envelope.Result == nil {
		return SearchResult{}, quelleerr.New(quelleerr.ExtensionABIViolation, "simple_search_empty_result")
	}
	return *envelope.Result, nil
}
