package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/entities"
)

const genreSeparator = ", "

// Builder converts the current local library into a snapshot. It only
// reads; storage failures propagate to the caller.
type Builder struct {
	library    *library.Repository
	categories *categories.Repository
}

// NewBuilder creates a snapshot builder over the given repositories.
func NewBuilder(lib *library.Repository, cats *categories.Repository) *Builder {
	return &Builder{library: lib, categories: cats}
}

// Build produces a snapshot of the library as of now. With
// favoritesOnly set, only favorited items are included.
func (b *Builder) Build(device Device, favoritesOnly bool) (*Snapshot, error) {
	items, err := b.library.ListLibrary(favoritesOnly)
	if err != nil {
		return nil, fmt.Errorf("list library: %w", err)
	}

	manga := make([]Manga, 0, len(items))
	for _, item := range items {
		m, err := b.buildManga(item)
		if err != nil {
			return nil, err
		}
		manga = append(manga, m)
	}

	cats, err := b.categories.List()
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	wireCats := make([]Category, 0, len(cats))
	for _, c := range cats {
		wireCats = append(wireCats, Category{Name: c.Name, Order: c.SortOrder, Flags: c.Flags})
	}

	return &Snapshot{
		Sync:   NewStatus("completed", time.Now()),
		Backup: &Library{Manga: manga, Categories: wireCats},
		Device: device,
	}, nil
}

func (b *Builder) buildManga(item entities.Manga) (Manga, error) {
	m := Manga{
		Source:         item.Source,
		URL:            item.URL,
		Title:          item.Title,
		Artist:         item.Artist,
		Author:         item.Author,
		Description:    item.Description,
		Genre:          SplitGenre(item.Genre),
		Status:         item.Status,
		ThumbnailURL:   item.ThumbnailURL,
		DateAdded:      item.DateAdded,
		ViewerFlags:    item.ViewerFlags,
		Favorite:       item.Favorite,
		LastModifiedAt: item.LastModifiedAt,
	}

	for _, ch := range item.Chapters {
		m.Chapters = append(m.Chapters, Chapter{
			URL:            ch.URL,
			Name:           ch.Name,
			Scanlator:      ch.Scanlator,
			Read:           ch.Read,
			Bookmark:       ch.Bookmark,
			LastPageRead:   ch.LastPageRead,
			ChapterNumber:  ch.ChapterNumber,
			SourceOrder:    ch.SourceOrder,
			DateFetch:      ch.DateFetch,
			DateUpload:     ch.DateUpload,
			LastModifiedAt: ch.LastModifiedAt,
		})
	}

	orders, err := b.library.CategoryOrdersFor(item.ID)
	if err != nil {
		return Manga{}, fmt.Errorf("categories for %q: %w", item.Title, err)
	}
	m.Categories = orders

	for _, tr := range item.Tracks {
		m.Tracking = append(m.Tracking, Track{
			SyncID:          tr.SyncID,
			RemoteID:        tr.RemoteID,
			LibraryID:       tr.LibraryID,
			Title:           tr.Title,
			LastChapterRead: tr.LastChapterRead,
			TotalChapters:   tr.TotalChapters,
			Status:          tr.Status,
			Score:           tr.Score,
			RemoteURL:       tr.RemoteURL,
			StartDate:       tr.StartDate,
			FinishDate:      tr.FinishDate,
		})
	}

	hist, err := b.library.HistoryFor(item.ID)
	if err != nil {
		return Manga{}, fmt.Errorf("history for %q: %w", item.Title, err)
	}
	for _, h := range hist {
		m.History = append(m.History, History{URL: h.URL, LastRead: h.LastRead, ReadDuration: h.ReadDuration})
	}

	return m, nil
}

// SplitGenre converts the stored comma-separated genre string into the
// ordered wire-format list.
func SplitGenre(genre string) []string {
	if genre == "" {
		return nil
	}
	parts := strings.Split(genre, genreSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinGenre is the inverse of SplitGenre, used when applying a snapshot.
func JoinGenre(genre []string) string {
	return strings.Join(genre, genreSeparator)
}
