package syncer

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/okayu/mangasync/internal/database"
	"github.com/okayu/mangasync/internal/database/categories"
	"github.com/okayu/mangasync/internal/database/library"
	"github.com/okayu/mangasync/internal/entities"
	"github.com/okayu/mangasync/internal/snapshot"
)

// Applier writes a merged snapshot into local storage. The whole apply
// phase runs in one transaction: a failure anywhere rolls everything
// back and local state stays exactly as it was.
//
// Unlike the merge engine, the applier does no field-level union on
// item scalars: the merged record is already the resolved truth and
// overwrites the local row wholesale, keeping only the local numeric
// id. Chapters, history and tracks keep their own conflict rules.
type Applier struct {
	db *database.Database
}

// NewApplier creates an applier over the local database.
func NewApplier(db *database.Database) *Applier {
	return &Applier{db: db}
}

// Apply makes the merged snapshot the new local truth.
func (a *Applier) Apply(ctx context.Context, merged *snapshot.Snapshot) error {
	if merged == nil || merged.Backup == nil {
		return nil
	}

	err := a.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Repositories over tx keep all writes inside the transaction.
		libRepo := library.NewRepository(tx)

		catIDByOrder, err := applyCategories(categories.NewRepository(tx), merged.Backup.Categories)
		if err != nil {
			return err
		}

		for _, m := range merged.Backup.Manga {
			if !m.Favorite {
				continue
			}
			if err := applyManga(tx, libRepo, m, catIDByOrder); err != nil {
				return fmt.Errorf("apply %q: %w", m.Title, err)
			}
		}

		return applyNonFavorites(tx, libRepo, merged.Backup.Manga)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrApply, err)
	}
	return nil
}

// applyCategories upserts the snapshot's categories by name and returns
// a map from snapshot sort order to local category id, used to resolve
// per-item membership lists.
func applyCategories(repo *categories.Repository, cats []snapshot.Category) (map[int64]uint, error) {
	byOrder := make(map[int64]uint, len(cats))
	for _, c := range cats {
		local, err := repo.GetByName(c.Name)
		if err != nil {
			return nil, fmt.Errorf("lookup category %q: %w", c.Name, err)
		}
		if local == nil {
			local = &entities.Category{Name: c.Name, SortOrder: c.Order, Flags: c.Flags}
			if err := repo.Create(local); err != nil {
				return nil, fmt.Errorf("create category %q: %w", c.Name, err)
			}
		} else {
			local.SortOrder = c.Order
			local.Flags = c.Flags
			if err := repo.Save(local); err != nil {
				return nil, fmt.Errorf("update category %q: %w", c.Name, err)
			}
		}
		byOrder[c.Order] = local.ID
	}
	return byOrder, nil
}

func applyManga(tx *gorm.DB, repo *library.Repository, m snapshot.Manga, catIDByOrder map[int64]uint) error {
	local, err := repo.GetByKey(m.Source, m.URL)
	if err != nil {
		return fmt.Errorf("lookup manga: %w", err)
	}
	if local == nil {
		local = &entities.Manga{
			Source:       m.Source,
			URL:          m.URL,
			Title:        m.Title,
			Artist:       m.Artist,
			Author:       m.Author,
			Description:  m.Description,
			Genre:        snapshot.JoinGenre(m.Genre),
			Status:       m.Status,
			ThumbnailURL: m.ThumbnailURL,
			Favorite:     m.Favorite,
			Initialized:  m.Description != "",
			DateAdded:    m.DateAdded,
			ViewerFlags:  m.ViewerFlags,
		}
		if err := tx.Create(local).Error; err != nil {
			return fmt.Errorf("insert manga: %w", err)
		}
	} else {
		// Full scalar overwrite, local numeric id preserved.
		local.Title = m.Title
		local.Artist = m.Artist
		local.Author = m.Author
		local.Description = m.Description
		local.Genre = snapshot.JoinGenre(m.Genre)
		local.Status = m.Status
		local.ThumbnailURL = m.ThumbnailURL
		local.Favorite = m.Favorite
		local.Initialized = local.Initialized || m.Description != ""
		local.DateAdded = m.DateAdded
		local.ViewerFlags = m.ViewerFlags
		if err := tx.Save(local).Error; err != nil {
			return fmt.Errorf("update manga: %w", err)
		}
	}

	if err := applyChapters(tx, local.ID, m.Chapters); err != nil {
		return err
	}
	if err := relinkCategories(tx, local.ID, m.Categories, catIDByOrder); err != nil {
		return err
	}
	if err := applyTracks(tx, local.ID, m.Tracking); err != nil {
		return err
	}
	return applyHistory(tx, local.ID, m.History)
}

// applyChapters matches incoming chapters to local ones by url and
// splits the result into an update batch (known local ids) and an
// insert batch, written in two grouped calls.
//
// Precedence on a matched chapter: the read flag from the incoming side
// wins whenever the flags differ, and takes its page position with it;
// when the flags agree, a nonzero local page position is kept; a
// bookmark set on either side survives.
func applyChapters(tx *gorm.DB, mangaID uint, chapters []snapshot.Chapter) error {
	var existing []entities.Chapter
	if err := tx.Where("manga_id = ?", mangaID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load chapters: %w", err)
	}
	byURL := make(map[string]entities.Chapter, len(existing))
	for _, c := range existing {
		byURL[c.URL] = c
	}

	var updates []entities.Chapter
	var inserts []entities.Chapter
	for _, in := range chapters {
		local, found := byURL[in.URL]
		if !found {
			inserts = append(inserts, entities.Chapter{
				MangaID:       mangaID,
				URL:           in.URL,
				Name:          in.Name,
				Scanlator:     in.Scanlator,
				Read:          in.Read,
				Bookmark:      in.Bookmark,
				LastPageRead:  in.LastPageRead,
				ChapterNumber: in.ChapterNumber,
				SourceOrder:   in.SourceOrder,
				DateFetch:     in.DateFetch,
				DateUpload:    in.DateUpload,
			})
			continue
		}

		if in.Read != local.Read {
			local.Read = in.Read
			local.LastPageRead = in.LastPageRead
		} else if local.LastPageRead == 0 {
			local.LastPageRead = in.LastPageRead
		}
		local.Bookmark = local.Bookmark || in.Bookmark
		local.Name = in.Name
		local.Scanlator = in.Scanlator
		local.ChapterNumber = in.ChapterNumber
		local.SourceOrder = in.SourceOrder
		local.DateFetch = in.DateFetch
		local.DateUpload = in.DateUpload
		updates = append(updates, local)
	}

	if len(updates) > 0 {
		if err := tx.Save(&updates).Error; err != nil {
			return fmt.Errorf("update chapters: %w", err)
		}
	}
	if len(inserts) > 0 {
		if err := tx.Create(&inserts).Error; err != nil {
			return fmt.Errorf("insert chapters: %w", err)
		}
	}
	return nil
}

// relinkCategories replaces the item's association rows from the merged
// category-order list. Orders that resolve to no known category are
// skipped; an item whose whole list fails to resolve ends up
// uncategorized, which is intentional.
func relinkCategories(tx *gorm.DB, mangaID uint, orders []int64, catIDByOrder map[int64]uint) error {
	if err := tx.Where("manga_id = ?", mangaID).Delete(&entities.MangaCategory{}).Error; err != nil {
		return fmt.Errorf("unlink categories: %w", err)
	}

	var links []entities.MangaCategory
	for _, order := range orders {
		if catID, ok := catIDByOrder[order]; ok {
			links = append(links, entities.MangaCategory{MangaID: mangaID, CategoryID: catID})
		}
	}
	if len(links) == 0 {
		return nil
	}
	if err := tx.Create(&links).Error; err != nil {
		return fmt.Errorf("link categories: %w", err)
	}
	return nil
}

// applyTracks matches by tracking service id. lastChapterRead is
// monotonic; remote and library ids adopt the incoming value only when
// they actually differ. Unmatched tracks insert with a fresh local id.
func applyTracks(tx *gorm.DB, mangaID uint, tracks []snapshot.Track) error {
	var existing []entities.Track
	if err := tx.Where("manga_id = ?", mangaID).Find(&existing).Error; err != nil {
		return fmt.Errorf("load tracks: %w", err)
	}
	bySyncID := make(map[int64]entities.Track, len(existing))
	for _, t := range existing {
		bySyncID[t.SyncID] = t
	}

	for _, in := range tracks {
		local, found := bySyncID[in.SyncID]
		if !found {
			fresh := entities.Track{
				MangaID:         mangaID,
				SyncID:          in.SyncID,
				RemoteID:        in.RemoteID,
				LibraryID:       in.LibraryID,
				Title:           in.Title,
				LastChapterRead: in.LastChapterRead,
				TotalChapters:   in.TotalChapters,
				Status:          in.Status,
				Score:           in.Score,
				RemoteURL:       in.RemoteURL,
				StartDate:       in.StartDate,
				FinishDate:      in.FinishDate,
			}
			if err := tx.Create(&fresh).Error; err != nil {
				return fmt.Errorf("insert track: %w", err)
			}
			continue
		}

		if in.LastChapterRead > local.LastChapterRead {
			local.LastChapterRead = in.LastChapterRead
		}
		if in.RemoteID != local.RemoteID {
			local.RemoteID = in.RemoteID
		}
		if !int64PtrEqual(in.LibraryID, local.LibraryID) {
			local.LibraryID = in.LibraryID
		}
		local.Title = in.Title
		local.TotalChapters = in.TotalChapters
		local.Status = in.Status
		local.Score = in.Score
		local.RemoteURL = in.RemoteURL
		local.StartDate = in.StartDate
		local.FinishDate = in.FinishDate
		if err := tx.Save(&local).Error; err != nil {
			return fmt.Errorf("update track: %w", err)
		}
	}
	return nil
}

// applyHistory upserts history entries resolved through chapter urls.
// Both the timestamp and the accumulated duration take the max of local
// and incoming, so applying the same entry twice is a no-op.
func applyHistory(tx *gorm.DB, mangaID uint, history []snapshot.History) error {
	for _, in := range history {
		var chapter entities.Chapter
		err := tx.Where("manga_id = ? AND url = ?", mangaID, in.URL).First(&chapter).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No chapter to attach to; the entry stays on the side
			// that produced it.
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve history chapter: %w", err)
		}

		var local entities.History
		err = tx.Where("chapter_id = ?", chapter.ID).First(&local).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			local = entities.History{ChapterID: chapter.ID, LastRead: in.LastRead, ReadDuration: in.ReadDuration}
			if err := tx.Create(&local).Error; err != nil {
				return fmt.Errorf("insert history: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup history: %w", err)
		default:
			changed := false
			if in.LastRead > local.LastRead {
				local.LastRead = in.LastRead
				changed = true
			}
			if in.ReadDuration > local.ReadDuration {
				local.ReadDuration = in.ReadDuration
				changed = true
			}
			if changed {
				if err := tx.Save(&local).Error; err != nil {
					return fmt.Errorf("update history: %w", err)
				}
			}
		}
	}
	return nil
}

// applyNonFavorites aligns local favorite flags with items the merged
// snapshot explicitly carries as non-favorites. Nothing is deleted:
// chapters, history and tracks stay in place.
func applyNonFavorites(tx *gorm.DB, repo *library.Repository, manga []snapshot.Manga) error {
	for _, m := range manga {
		if m.Favorite {
			continue
		}
		local, err := repo.GetByKey(m.Source, m.URL)
		if err != nil {
			return fmt.Errorf("lookup non-favorite: %w", err)
		}
		if local == nil {
			// Never favorited here either; nothing to align.
			continue
		}
		if local.Favorite {
			local.Favorite = false
			if err := tx.Save(local).Error; err != nil {
				return fmt.Errorf("clear favorite on %q: %w", local.Title, err)
			}
		}
	}
	return nil
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
