// Package syncer contains the backend-agnostic sync core: the merge
// engine that reconciles two snapshots, the applier that writes a
// merged snapshot back into local storage, and the service that drives
// one sync cycle through its states.
package syncer

import (
	"github.com/okayu/mangasync/internal/snapshot"
)

// Merge reconciles two snapshots into one using last-write-wins per
// entity with list-level union semantics.
//
// Scalar conflicts on a shared item resolve to the side with the
// greater last_modified_at; on exactly equal timestamps the local side
// wins. Two fields are always combined instead of overwritten: chapters
// (union by url, each url resolved by the chapter's own timestamp) and
// favorite (OR of both sides; un-favoriting is the reconciler's job,
// not the merge's). Entities present on exactly one side pass through
// unchanged. The merged snapshot keeps the local sync status and device
// descriptor, since those describe who is asking, not the data.
func Merge(local, remote *snapshot.Snapshot) *snapshot.Snapshot {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}

	// A side without a payload is the identity element.
	if local.Backup == nil {
		return remote
	}
	if remote.Backup == nil {
		return local
	}

	return &snapshot.Snapshot{
		Sync:   local.Sync,
		Device: local.Device,
		Backup: &snapshot.Library{
			Manga:      mergeManga(local.Backup.Manga, remote.Backup.Manga),
			Categories: mergeCategories(local.Backup.Categories, remote.Backup.Categories),
			Sources:    mergeSources(local.Backup.Sources, remote.Backup.Sources),
		},
	}
}

func mergeManga(local, remote []snapshot.Manga) []snapshot.Manga {
	remoteByKey := make(map[snapshot.Key]snapshot.Manga, len(remote))
	for _, m := range remote {
		remoteByKey[m.Key()] = m
	}
	localKeys := make(map[snapshot.Key]struct{}, len(local))

	merged := make([]snapshot.Manga, 0, len(local)+len(remote))
	for _, l := range local {
		localKeys[l.Key()] = struct{}{}
		r, shared := remoteByKey[l.Key()]
		if !shared {
			merged = append(merged, l)
			continue
		}
		merged = append(merged, mergeItem(l, r))
	}
	// Remote-only items pass through unchanged, in remote order.
	for _, r := range remote {
		if _, seen := localKeys[r.Key()]; !seen {
			merged = append(merged, r)
		}
	}
	return merged
}

// mergeItem resolves one item present on both sides.
func mergeItem(local, remote snapshot.Manga) snapshot.Manga {
	winner, loser := local, remote
	if remote.ModifiedAt() > local.ModifiedAt() {
		winner, loser = remote, local
	}

	merged := winner
	merged.Favorite = local.Favorite || remote.Favorite
	merged.Chapters = mergeChapters(local.Chapters, remote.Chapters)
	merged.Tracking = mergeTracks(winner.Tracking, loser.Tracking)
	merged.History = mergeHistory(local.History, remote.History)
	return merged
}

// mergeChapters unions both chapter lists by url. A url present on both
// sides resolves by the chapter's own timestamp, independently of which
// parent item won; the local chapter wins ties.
func mergeChapters(local, remote []snapshot.Chapter) []snapshot.Chapter {
	remoteByURL := make(map[string]snapshot.Chapter, len(remote))
	for _, c := range remote {
		remoteByURL[c.URL] = c
	}
	localURLs := make(map[string]struct{}, len(local))

	merged := make([]snapshot.Chapter, 0, len(local)+len(remote))
	for _, l := range local {
		localURLs[l.URL] = struct{}{}
		r, shared := remoteByURL[l.URL]
		if shared && r.ModifiedAt() > l.ModifiedAt() {
			merged = append(merged, r)
		} else {
			merged = append(merged, l)
		}
	}
	for _, r := range remote {
		if _, seen := localURLs[r.URL]; !seen {
			merged = append(merged, r)
		}
	}
	return merged
}

// mergeTracks unions by tracking service id. The winning item's track
// is preferred, but lastChapterRead is monotonic and takes the max of
// both sides.
func mergeTracks(winner, loser []snapshot.Track) []snapshot.Track {
	loserByID := make(map[int64]snapshot.Track, len(loser))
	for _, t := range loser {
		loserByID[t.SyncID] = t
	}
	winnerIDs := make(map[int64]struct{}, len(winner))

	merged := make([]snapshot.Track, 0, len(winner)+len(loser))
	for _, t := range winner {
		winnerIDs[t.SyncID] = struct{}{}
		if other, shared := loserByID[t.SyncID]; shared && other.LastChapterRead > t.LastChapterRead {
			t.LastChapterRead = other.LastChapterRead
		}
		merged = append(merged, t)
	}
	for _, t := range loser {
		if _, seen := winnerIDs[t.SyncID]; !seen {
			merged = append(merged, t)
		}
	}
	return merged
}

// mergeHistory unions by chapter url keeping the maximum timestamp and
// accumulated duration; history never regresses.
func mergeHistory(local, remote []snapshot.History) []snapshot.History {
	remoteByURL := make(map[string]snapshot.History, len(remote))
	for _, h := range remote {
		remoteByURL[h.URL] = h
	}
	localURLs := make(map[string]struct{}, len(local))

	merged := make([]snapshot.History, 0, len(local)+len(remote))
	for _, l := range local {
		localURLs[l.URL] = struct{}{}
		if r, shared := remoteByURL[l.URL]; shared {
			if r.LastRead > l.LastRead {
				l.LastRead = r.LastRead
			}
			if r.ReadDuration > l.ReadDuration {
				l.ReadDuration = r.ReadDuration
			}
		}
		merged = append(merged, l)
	}
	for _, r := range remote {
		if _, seen := localURLs[r.URL]; !seen {
			merged = append(merged, r)
		}
	}
	return merged
}

// mergeCategories merges by name. Categories carry no timestamp, so the
// record with the higher sort order wins; the local record wins ties.
func mergeCategories(local, remote []snapshot.Category) []snapshot.Category {
	remoteByName := make(map[string]snapshot.Category, len(remote))
	for _, c := range remote {
		remoteByName[c.Name] = c
	}
	localNames := make(map[string]struct{}, len(local))

	merged := make([]snapshot.Category, 0, len(local)+len(remote))
	for _, l := range local {
		localNames[l.Name] = struct{}{}
		if r, shared := remoteByName[l.Name]; shared && r.Order > l.Order {
			merged = append(merged, r)
		} else {
			merged = append(merged, l)
		}
	}
	for _, r := range remote {
		if _, seen := localNames[r.Name]; !seen {
			merged = append(merged, r)
		}
	}
	return merged
}

func mergeSources(local, remote []snapshot.Source) []snapshot.Source {
	seen := make(map[int64]struct{}, len(local))
	merged := make([]snapshot.Source, 0, len(local)+len(remote))
	for _, s := range local {
		seen[s.SourceID] = struct{}{}
		merged = append(merged, s)
	}
	for _, s := range remote {
		if _, ok := seen[s.SourceID]; !ok {
			merged = append(merged, s)
		}
	}
	return merged
}
