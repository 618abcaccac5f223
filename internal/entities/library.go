package entities

// Publication status values stored on Manga.Status.
const (
	MangaStatusUnknown   = 0
	MangaStatusOngoing   = 1
	MangaStatusCompleted = 2
	MangaStatusLicensed  = 3
)

// Manga is a library item. Its identity across devices is the
// (Source, URL) pair; the numeric ID is local to one device and is
// never compared or transmitted during sync.
type Manga struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Source      int64    `gorm:"uniqueIndex:idx_manga_source_url" json:"source"`
	URL         string   `gorm:"uniqueIndex:idx_manga_source_url;size:1024" json:"url"`
	Title       string   `gorm:"index;size:512" json:"title"`
	Artist      string   `gorm:"size:256" json:"artist,omitempty"`
	Author      string   `gorm:"size:256" json:"author,omitempty"`
	Description string   `gorm:"type:text" json:"description,omitempty"`
	Genre       string   `gorm:"type:text" json:"genre,omitempty"` // comma-separated, ordered
	Status      int      `json:"status"`
	ThumbnailURL string  `gorm:"size:2048" json:"thumbnail_url,omitempty"`
	Favorite    bool     `gorm:"index;default:false" json:"favorite"`
	Initialized bool     `gorm:"default:false" json:"initialized"`
	DateAdded   int64    `json:"date_added"` // epoch millis
	ViewerFlags int64    `json:"viewer_flags"`

	// Maintained by a SQLite trigger on every insert and update.
	// Nil means the row predates sync support and loses every
	// timestamp comparison.
	LastModifiedAt *int64 `json:"last_modified_at,omitempty"`

	Chapters   []Chapter       `gorm:"foreignKey:MangaID" json:"chapters,omitempty"`
	Categories []MangaCategory `gorm:"foreignKey:MangaID" json:"-"`
	Tracks     []Track         `gorm:"foreignKey:MangaID" json:"tracks,omitempty"`
}

func (Manga) TableName() string {
	return "manga"
}

// Chapter belongs to one manga and is identified by its URL within
// that manga's scope.
type Chapter struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	MangaID       uint    `gorm:"index:idx_chapter_manga_url,unique" json:"manga_id"`
	URL           string  `gorm:"index:idx_chapter_manga_url,unique;size:1024" json:"url"`
	Name          string  `gorm:"size:512" json:"name"`
	Scanlator     *string `gorm:"size:256" json:"scanlator,omitempty"`
	Read          bool    `gorm:"default:false" json:"read"`
	Bookmark      bool    `gorm:"default:false" json:"bookmark"`
	LastPageRead  int64   `json:"last_page_read"`
	ChapterNumber float64 `json:"chapter_number"`
	SourceOrder   int64   `json:"source_order"`
	DateFetch     int64   `json:"date_fetch"`
	DateUpload    int64   `json:"date_upload"`

	LastModifiedAt *int64 `json:"last_modified_at,omitempty"`
}

func (Chapter) TableName() string {
	return "chapters"
}

// Category is identified by name across devices. The sort order doubles
// as the only device-stable handle for encoding category membership in
// a snapshot, since numeric ids differ per device.
type Category struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"uniqueIndex;size:256" json:"name"`
	SortOrder int64  `gorm:"column:sort_order" json:"sort_order"`
	Flags     int64  `json:"flags"`
}

func (Category) TableName() string {
	return "categories"
}

// MangaCategory links a manga to a category. It carries its own
// last-modified timestamp so membership changes participate in merge.
type MangaCategory struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	MangaID    uint `gorm:"index:idx_manga_category,unique" json:"manga_id"`
	CategoryID uint `gorm:"index:idx_manga_category,unique" json:"category_id"`

	LastModifiedAt *int64 `json:"last_modified_at,omitempty"`
}

func (MangaCategory) TableName() string {
	return "manga_categories"
}

// Track records reading progress reported to an external tracking
// service. SyncID identifies the service; (MangaID, SyncID) is unique.
type Track struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	MangaID         uint    `gorm:"index:idx_track_manga_sync,unique" json:"manga_id"`
	SyncID          int64   `gorm:"index:idx_track_manga_sync,unique" json:"sync_id"`
	RemoteID        int64   `json:"remote_id"`
	LibraryID       *int64  `json:"library_id,omitempty"`
	Title           string  `gorm:"size:512" json:"title"`
	LastChapterRead float64 `json:"last_chapter_read"`
	TotalChapters   int64   `json:"total_chapters"`
	Status          int     `json:"status"`
	Score           float64 `json:"score"`
	RemoteURL       string  `gorm:"size:2048" json:"remote_url,omitempty"`
	StartDate       int64   `json:"start_date"`
	FinishDate      int64   `json:"finish_date"`
}

func (Track) TableName() string {
	return "tracks"
}

// History tracks when a chapter was last read and for how long. Both
// fields only ever move forward during reconciliation.
type History struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	ChapterID    uint  `gorm:"uniqueIndex" json:"chapter_id"`
	LastRead     int64 `json:"last_read"`      // epoch millis
	ReadDuration int64 `json:"read_duration"`  // seconds, accumulates
}

func (History) TableName() string {
	return "history"
}
