package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/utils"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "lyrics"

var errBucketMissing = errors.New("bucket not found")

// PersistentCache keeps documents in bbolt with an in-memory mirror for reads
type PersistentCache struct {
	// dbMu guards db against swaps during restore
	dbMu               sync.RWMutex
	db                 *bolt.DB
	memCache           sync.Map
	dbPath             string
	backupPath         string
	compressionEnabled bool
}

// CacheEntry is the stored form of a value, compressed when compression is on
type CacheEntry struct {
	Value    string    `json:"value"`
	StoredAt time.Time `json:"storedAt"`
}

// NewPersistentCache opens (or creates) the cache database at dbPath
func NewPersistentCache(dbPath string, backupPath string, compressionEnabled bool) (*PersistentCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("%s Found existing database at %s (%d bytes)", logcolors.LogCacheInit, dbPath, info.Size())
	} else {
		log.Infof("%s Creating new database at %s", logcolors.LogCacheInit, dbPath)
	}

	pc := &PersistentCache{
		dbPath:             dbPath,
		backupPath:         backupPath,
		compressionEnabled: compressionEnabled,
	}
	if err := pc.open(); err != nil {
		return nil, err
	}

	log.Infof("%s Persistent cache ready at %s (compression: %v, backups: %s)", logcolors.LogCache, dbPath, compressionEnabled, backupPath)
	return pc, nil
}

// open must be called with dbMu held for writing (or before the cache is shared)
func (pc *PersistentCache) open() error {
	db, err := bolt.Open(pc.dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create cache bucket: %w", err)
	}

	pc.db = db
	if err := pc.loadToMemory(); err != nil {
		log.Warnf("%s Failed to preload cache to memory: %v", logcolors.LogCache, err)
	}
	return nil
}

// loadToMemory replaces the mirror with the contents of the database
func (pc *PersistentCache) loadToMemory() error {
	pc.memCache.Range(func(k, _ interface{}) bool {
		pc.memCache.Delete(k)
		return true
	})

	count := 0
	err := pc.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var entry CacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				log.Warnf("%s Skipping unreadable entry %s: %v", logcolors.LogCache, string(k), err)
				return nil
			}
			pc.memCache.Store(string(k), entry)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}

	log.Infof("%s Loaded %d entries from disk to memory", logcolors.LogCache, count)
	return nil
}

func (pc *PersistentCache) decode(key string, entry CacheEntry) (string, bool) {
	if !pc.compressionEnabled {
		return entry.Value, true
	}
	value, err := utils.DecompressString(entry.Value)
	if err != nil {
		log.Errorf("%s Error decompressing value for key %s: %v", logcolors.LogCache, key, err)
		return "", false
	}
	return value, true
}

// Get returns the value for key, checking memory before disk
func (pc *PersistentCache) Get(key string) (string, bool) {
	if entry, ok := pc.memCache.Load(key); ok {
		return pc.decode(key, entry.(CacheEntry))
	}

	pc.dbMu.RLock()
	defer pc.dbMu.RUnlock()

	var entry CacheEntry
	err := pc.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errBucketMissing
		}
		data := b.Get([]byte(key))
		if data == nil {
			return ErrMiss
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return "", false
	}

	pc.memCache.Store(key, entry)
	return pc.decode(key, entry)
}

// Entry returns the raw stored entry for key, including when it was written
func (pc *PersistentCache) Entry(key string) (CacheEntry, bool) {
	entry, ok := pc.memCache.Load(key)
	if !ok {
		return CacheEntry{}, false
	}
	return entry.(CacheEntry), true
}

// Set stores value under key in memory and on disk
func (pc *PersistentCache) Set(key, value string) error {
	stored := value
	if pc.compressionEnabled {
		var err error
		stored, err = utils.CompressString(value)
		if err != nil {
			log.Errorf("%s Error compressing value for key %s: %v", logcolors.LogCache, key, err)
			return err
		}
	}

	entry := CacheEntry{Value: stored, StoredAt: time.Now()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pc.dbMu.RLock()
	defer pc.dbMu.RUnlock()

	err = pc.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errBucketMissing
		}
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return err
	}
	pc.memCache.Store(key, entry)
	return nil
}

// Delete removes key
func (pc *PersistentCache) Delete(key string) error {
	pc.memCache.Delete(key)

	pc.dbMu.RLock()
	defer pc.dbMu.RUnlock()

	return pc.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return errBucketMissing
		}
		return b.Delete([]byte(key))
	})
}

// DeletePrefix removes every key starting with prefix and returns how many were removed
func (pc *PersistentCache) DeletePrefix(prefix string) (int, error) {
	var keys []string
	pc.memCache.Range(func(k, _ interface{}) bool {
		if strings.HasPrefix(k.(string), prefix) {
			keys = append(keys, k.(string))
		}
		return true
	})

	for _, key := range keys {
		if err := pc.Delete(key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Clear removes every entry
func (pc *PersistentCache) Clear() error {
	pc.dbMu.RLock()
	defer pc.dbMu.RUnlock()

	err := pc.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}

	pc.memCache.Range(func(k, _ interface{}) bool {
		pc.memCache.Delete(k)
		return true
	})
	return nil
}

// Range iterates over the stored entries until fn returns false
func (pc *PersistentCache) Range(fn func(key string, entry CacheEntry) bool) {
	pc.memCache.Range(func(k, v interface{}) bool {
		return fn(k.(string), v.(CacheEntry))
	})
}

// Stats returns the number of keys and their approximate stored size
func (pc *PersistentCache) Stats() (numKeys int, sizeInKB int) {
	size := 0
	pc.memCache.Range(func(k, v interface{}) bool {
		numKeys++
		size += len(k.(string)) + len(v.(CacheEntry).Value)
		return true
	})
	return numKeys, size / 1024
}

// Backup writes a consistent copy of the database to the backup directory and
// returns its path. The cache stays available while the copy is written.
func (pc *PersistentCache) Backup() (string, error) {
	name := fmt.Sprintf("cache_backup_%s.db", time.Now().Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(pc.backupPath, name)

	pc.dbMu.RLock()
	defer pc.dbMu.RUnlock()

	err := pc.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
	if err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	log.Infof("%s Backup created: %s", logcolors.LogCacheBackup, path)
	return path, nil
}

// BackupAndClear backs up the cache and then empties it
func (pc *PersistentCache) BackupAndClear() (string, error) {
	path, err := pc.Backup()
	if err != nil {
		return "", err
	}
	if err := pc.Clear(); err != nil {
		return path, fmt.Errorf("backup created but failed to clear cache: %w", err)
	}

	log.Infof("%s Cache cleared (backup: %s)", logcolors.LogCacheClear, path)
	return path, nil
}

// BackupInfo describes a backup file
type BackupInfo struct {
	FileName  string    `json:"fileName"`
	Size      int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListBackups returns the available backups, newest first
func (pc *PersistentCache) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(pc.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warnf("%s Failed to stat %s: %v", logcolors.LogCacheBackups, entry.Name(), err)
			continue
		}
		backups = append(backups, BackupInfo{
			FileName:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// backupFile resolves a backup name inside the backup directory
func (pc *PersistentCache) backupFile(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || filepath.Ext(fileName) != ".db" {
		return "", fmt.Errorf("invalid backup file name %q", fileName)
	}
	path := filepath.Join(pc.backupPath, fileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", fmt.Errorf("backup file not found: %s", fileName)
	}
	return path, nil
}

// RestoreFromBackup replaces the database with a backup. The current database
// is put back if the restored file cannot be opened.
func (pc *PersistentCache) RestoreFromBackup(fileName string) error {
	src, err := pc.backupFile(fileName)
	if err != nil {
		return err
	}

	log.Infof("%s Restoring from %s", logcolors.LogCacheRestore, fileName)

	pc.dbMu.Lock()
	defer pc.dbMu.Unlock()

	if err := pc.db.Close(); err != nil {
		return fmt.Errorf("failed to close current database: %w", err)
	}

	saved := pc.dbPath + ".pre-restore"
	if err := copyFile(pc.dbPath, saved); err != nil {
		if reopenErr := pc.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen database: %v", logcolors.LogCacheRestore, reopenErr)
		}
		return fmt.Errorf("failed to save current database: %w", err)
	}
	defer os.Remove(saved)

	if err := copyFile(src, pc.dbPath); err != nil {
		return pc.rollback(saved, fmt.Errorf("failed to copy backup: %w", err))
	}
	if err := pc.open(); err != nil {
		return pc.rollback(saved, err)
	}

	log.Infof("%s Restored from %s", logcolors.LogCacheRestore, fileName)
	return nil
}

func (pc *PersistentCache) rollback(saved string, cause error) error {
	if err := copyFile(saved, pc.dbPath); err != nil {
		return fmt.Errorf("%v (rollback failed: %v)", cause, err)
	}
	if err := pc.open(); err != nil {
		return fmt.Errorf("%v (reopen failed: %v)", cause, err)
	}
	return cause
}

// DeleteBackup removes a backup file
func (pc *PersistentCache) DeleteBackup(fileName string) error {
	path, err := pc.backupFile(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}

	log.Infof("%s Deleted backup %s", logcolors.LogCacheBackups, fileName)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Close closes the database
func (pc *PersistentCache) Close() error {
	pc.dbMu.Lock()
	defer pc.dbMu.Unlock()
	if pc.db != nil {
		return pc.db.Close()
	}
	return nil
}
