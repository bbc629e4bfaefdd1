package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lyrics-sync-go/cache"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/lyrics"
	"lyrics-sync-go/services/notifier"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/stats"
	"lyrics-sync-go/utils"

	log "github.com/sirupsen/logrus"
)

const (
	lyricsKeyPrefix   = "lyrics:"
	negativeKeyPrefix = "no_lyrics:"
)

// ranger is implemented by backends that can enumerate their entries
type ranger interface {
	Range(fn func(key string, entry cache.CacheEntry) bool)
}

// prefixDeleter is implemented by backends that can drop a key range
type prefixDeleter interface {
	DeletePrefix(prefix string) (int, error)
}

// Lyrics cache operations

// getCachedLyrics returns the cached document for key
func getCachedLyrics(key string) (*CachedLyrics, bool) {
	cached, ok := lyricsCache.Get(key)
	if !ok {
		return nil, false
	}

	var entry CachedLyrics
	if err := json.Unmarshal([]byte(cached), &entry); err != nil || entry.Lyrics == nil {
		log.Warnf("%s Dropping unreadable entry %s: %v", logcolors.LogCacheLyrics, key, err)
		lyricsCache.Delete(key)
		return nil, false
	}
	return &entry, true
}

// setCachedLyrics stores a loaded document with the provider that found it
func setCachedLyrics(key string, doc *lyrics.Lyrics, provider string) {
	data, err := json.Marshal(CachedLyrics{
		Lyrics:   doc,
		Provider: provider,
		CachedAt: time.Now().Unix(),
	})
	if err != nil {
		log.Errorf("%s Error marshaling cached lyrics: %v", logcolors.LogCacheLyrics, err)
		return
	}
	if err := lyricsCache.Set(key, string(data)); err != nil {
		log.Errorf("%s Error setting cache value: %v", logcolors.LogCacheLyrics, err)
	}
}

// Negative cache operations

// getNegativeCache checks if a request is in the negative cache (no lyrics available)
// Returns the reason and true if found and not expired, empty string and false otherwise
func getNegativeCache(key string) (string, bool) {
	negativeKey := negativeKeyPrefix + key
	cached, ok := lyricsCache.Get(negativeKey)
	if !ok {
		return "", false
	}

	var entry NegativeCacheEntry
	if err := json.Unmarshal([]byte(cached), &entry); err != nil {
		return "", false
	}

	ttlDays := conf.Configuration.NegativeCacheTTLInDays
	expirationTime := entry.Timestamp + int64(ttlDays*24*60*60)
	if time.Now().Unix() > expirationTime {
		lyricsCache.Delete(negativeKey)
		return "", false
	}

	return entry.Reason, true
}

// setNegativeCache stores a failed lookup in the negative cache
func setNegativeCache(key, reason string) {
	if conf.Configuration.NegativeCacheTTLInDays <= 0 {
		return
	}
	negativeKey := negativeKeyPrefix + key
	data, err := json.Marshal(NegativeCacheEntry{
		Reason:    reason,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		log.Errorf("%s Error marshaling negative cache entry: %v", logcolors.LogCacheNegative, err)
		return
	}
	if err := lyricsCache.Set(negativeKey, string(data)); err != nil {
		log.Errorf("%s Error setting negative cache: %v", logcolors.LogCacheNegative, err)
		return
	}
	log.Infof("%s Cached 'no lyrics' for key: %s (reason: %s)", logcolors.LogCacheNegative, key, reason)
}

// buildCacheKey creates a normalized key for a song request.
// Requests for local files are not cached and get an empty key.
func buildCacheKey(req providers.Request) string {
	if req.FilePath != "" {
		return ""
	}
	duration := ""
	if req.DurationMs > 0 {
		duration = strconv.FormatInt(req.DurationMs/1000, 10) + "s"
	}
	return lyricsKeyPrefix + utils.NormalizeQuery(req.Title, req.Artist, req.Album, duration)
}

// authorized checks the admin token
func authorized(r *http.Request) bool {
	token := conf.Configuration.CacheAccessToken
	return token != "" && r.Header.Get("Authorization") == token
}

func backupable(w http.ResponseWriter, r *http.Request) (cache.Backupable, bool) {
	b, ok := lyricsCache.(cache.Backupable)
	if !ok {
		Respond(w, r).Error(http.StatusNotImplemented, "Backups are only supported by the bolt cache backend")
	}
	return b, ok
}

// Cache admin handlers

func getCacheDump(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	numKeys, sizeInKB := lyricsCache.Stats()
	s := stats.Get()

	resp := CacheDumpResponse{
		Backend:      conf.Configuration.CacheBackend,
		NumberOfKeys: numKeys,
		SizeInKB:     sizeInKB,
		SizeInMB:     float64(sizeInKB) / 1024,
		Performance: CachePerformance{
			Hits:         s.CacheHits.Load(),
			Misses:       s.CacheMisses.Load(),
			NegativeHits: s.NegativeCacheHits.Load(),
			HitRate:      s.CacheHitRate(),
		},
	}

	if rg, ok := lyricsCache.(ranger); ok && r.URL.Query().Get("keys") != "false" {
		resp.Cache = CacheDump{}
		rg.Range(func(key string, entry cache.CacheEntry) bool {
			resp.Cache[key] = entry
			return true
		})
	}

	Respond(w, r).JSON(resp)
}

func backupCache(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	b, ok := backupable(w, r)
	if !ok {
		return
	}

	backupPath, err := b.Backup()
	if err != nil {
		log.Errorf("%s Failed to create backup: %v", logcolors.LogCacheBackup, err)
		notifier.PublishCacheBackupFailed(err)
		Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to create backup: %v", err))
		return
	}

	log.Infof("%s Backup created successfully at: %s", logcolors.LogCacheBackup, backupPath)
	Respond(w, r).JSON(map[string]interface{}{
		"message":     "Backup created successfully",
		"backup_path": backupPath,
	})
}

// listBackups lists backups on GET and deletes one on DELETE ?backup=name
func listBackups(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	b, ok := backupable(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		name := r.URL.Query().Get("backup")
		if name == "" {
			Respond(w, r).Error(http.StatusBadRequest, "Missing 'backup' query parameter")
			return
		}
		if err := b.DeleteBackup(name); err != nil {
			log.Errorf("%s Failed to delete backup %s: %v", logcolors.LogCacheBackups, name, err)
			Respond(w, r).Error(http.StatusBadRequest, fmt.Sprintf("Failed to delete backup: %v", err))
			return
		}
		log.Infof("%s Deleted backup %s", logcolors.LogCacheBackups, name)
		Respond(w, r).JSON(map[string]interface{}{"message": "Backup deleted", "backup": name})
		return
	}

	backups, err := b.ListBackups()
	if err != nil {
		log.Errorf("%s Failed to list backups: %v", logcolors.LogCacheBackups, err)
		Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to list backups: %v", err))
		return
	}

	Respond(w, r).JSON(map[string]interface{}{
		"count":   len(backups),
		"backups": backups,
	})
}

func restoreCache(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	b, ok := backupable(w, r)
	if !ok {
		return
	}

	backupFileName := r.URL.Query().Get("backup")
	if backupFileName == "" {
		Respond(w, r).Error(http.StatusBadRequest, "Missing 'backup' query parameter. Use /cache/backups to list available backups.")
		return
	}

	if err := b.RestoreFromBackup(backupFileName); err != nil {
		log.Errorf("%s Failed to restore from backup %s: %v", logcolors.LogCacheRestore, backupFileName, err)
		Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to restore from backup: %v", err))
		return
	}

	numKeys, sizeKB := lyricsCache.Stats()

	log.Infof("%s Cache restored from backup: %s", logcolors.LogCacheRestore, backupFileName)
	notifier.PublishCacheRestored(backupFileName, numKeys)
	Respond(w, r).JSON(map[string]interface{}{
		"message":       "Cache restored successfully",
		"restored_from": backupFileName,
		"keys_restored": numKeys,
		"size_kb":       sizeKB,
	})
}

// clearCache empties the cache. With ?negative=true only "no lyrics" entries
// are dropped. The bolt backend takes a backup first.
func clearCache(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.URL.Query().Get("negative") == "true" {
		pd, ok := lyricsCache.(prefixDeleter)
		if !ok {
			Respond(w, r).Error(http.StatusNotImplemented, "Partial clears are only supported by the bolt cache backend")
			return
		}
		n, err := pd.DeletePrefix(negativeKeyPrefix)
		if err != nil {
			log.Errorf("%s Failed to clear negative cache: %v", logcolors.LogCacheClear, err)
			Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to clear negative cache: %v", err))
			return
		}
		log.Infof("%s Removed %d negative cache entries", logcolors.LogCacheClear, n)
		Respond(w, r).JSON(map[string]interface{}{
			"message": "Negative cache cleared",
			"removed": n,
		})
		return
	}

	if b, ok := lyricsCache.(cache.Backupable); ok {
		backupPath, err := b.BackupAndClear()
		if err != nil {
			log.Errorf("%s Failed to backup and clear cache: %v", logcolors.LogCacheClear, err)
			notifier.PublishCacheBackupFailed(err)
			Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to backup and clear cache: %v", err))
			return
		}
		log.Infof("%s Cache cleared successfully, backup at: %s", logcolors.LogCacheClear, backupPath)
		notifier.PublishCacheCleared(backupPath)
		Respond(w, r).JSON(map[string]interface{}{
			"message":     "Cache cleared successfully",
			"backup_path": backupPath,
		})
		return
	}

	if err := lyricsCache.Clear(); err != nil {
		log.Errorf("%s Failed to clear cache: %v", logcolors.LogCacheClear, err)
		Respond(w, r).Error(http.StatusInternalServerError, fmt.Sprintf("Failed to clear cache: %v", err))
		return
	}
	log.Infof("%s Cache cleared successfully", logcolors.LogCacheClear)
	notifier.PublishCacheCleared("")
	Respond(w, r).JSON(map[string]interface{}{"message": "Cache cleared successfully"})
}
