// Package filesource serves invocations from a directory of JSONL files, one
// root invocation per line. Files are tailed with fsnotify so new lines show
// up in the dashboard without a running store.
package filesource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tobert/trace-studio/internal/backend"
	"github.com/tobert/trace-studio/internal/invocation"
	"github.com/tobert/trace-studio/internal/storage"
)

const (
	// Invocation lines carry full argument and result payloads and can be
	// large.
	jsonlBufferInitial = 1 * 1024 * 1024
	jsonlBufferMax     = 10 * 1024 * 1024

	// DefaultCapacity is the number of root invocations kept in memory.
	DefaultCapacity = 10_000
)

// Config holds configuration for a FileSource.
type Config struct {
	Directory string
	Capacity  int
	Verbose   bool
}

// FileSource reads invocations from JSONL files and keeps the newest
// Capacity roots in a ring buffer.
type FileSource struct {
	directory string
	verbose   bool
	records   *storage.RingBuffer[invocation.Invocation]

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	fileOffsets map[string]int64

	subMu       sync.Mutex
	subscribers map[uint64]chan struct{}
	nextSubID   uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	_ backend.Source   = (*FileSource)(nil)
	_ backend.Notifier = (*FileSource)(nil)
)

// New creates a FileSource for the given directory.
func New(cfg Config) (*FileSource, error) {
	if cfg.Directory == "" {
		return nil, fmt.Errorf("directory is required")
	}

	info, err := os.Stat(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("cannot access directory %s: %w", cfg.Directory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cfg.Directory)
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileSource{
		directory:   cfg.Directory,
		verbose:     cfg.Verbose,
		records:     storage.NewRingBuffer[invocation.Invocation](capacity),
		watcher:     watcher,
		fileOffsets: make(map[string]int64),
		subscribers: make(map[uint64]chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start loads existing files and begins watching the directory. It returns
// after the initial load; watching continues in the background.
func (fs *FileSource) Start(ctx context.Context) error {
	if fs.verbose {
		log.Printf("📁 filesource: starting with directory %s\n", fs.directory)
	}

	if err := fs.watcher.Add(fs.directory); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fs.directory, err)
	}

	files, err := fs.findJSONLFiles()
	if err != nil {
		return fmt.Errorf("initial data load failed: %w", err)
	}
	for _, file := range files {
		count, err := fs.loadFile(ctx, file)
		if err != nil {
			log.Printf("⚠️  filesource: error loading %s: %v\n", file, err)
			continue
		}
		if fs.verbose && count > 0 {
			log.Printf("📁 filesource: loaded %d invocations from %s\n", count, filepath.Base(file))
		}
	}

	fs.wg.Add(1)
	go fs.watchLoop()

	return nil
}

// Stop stops the watcher and waits for the watch loop to exit.
func (fs *FileSource) Stop() {
	fs.cancel()
	fs.watcher.Close()
	fs.wg.Wait()
}

// Directory returns the directory being read.
func (fs *FileSource) Directory() string {
	return fs.directory
}

// Len returns the number of root invocations held.
func (fs *FileSource) Len() int {
	return fs.records.Size()
}

// Invocations implements backend.Source. Roots are returned newest first by
// created_at, filtered by LMP name or id when the query sets them.
func (fs *FileSource) Invocations(ctx context.Context, q backend.Query) ([]invocation.Invocation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := fs.records.GetAll()
	matched := all[:0]
	for _, inv := range all {
		if q.LMPName != "" && (inv.LMP == nil || inv.LMP.Name != q.LMPName) {
			continue
		}
		if q.LMPID != "" && inv.LMPID != q.LMPID {
			continue
		}
		matched = append(matched, inv)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	skip := q.Skip()
	if skip >= len(matched) {
		return []invocation.Invocation{}, nil
	}
	end := min(skip+q.PageSize, len(matched))

	out := make([]invocation.Invocation, end-skip)
	copy(out, matched[skip:end])
	return out, nil
}

// Invocation returns the root or nested invocation with the given id.
func (fs *FileSource) Invocation(ctx context.Context, id string) (*invocation.Invocation, error) {
	all := fs.records.GetAll()
	for i := len(all) - 1; i >= 0; i-- {
		if found := findNested(&all[i], id); found != nil {
			return found, nil
		}
	}
	return nil, backend.ErrNotFound
}

func findNested(inv *invocation.Invocation, id string) *invocation.Invocation {
	if inv.ID == id {
		return inv
	}
	for i := range inv.Uses {
		if found := findNested(&inv.Uses[i], id); found != nil {
			return found
		}
	}
	return nil
}

// Watch implements backend.Notifier. The channel receives a value after
// every batch of new lines and is closed when ctx ends or the source stops.
func (fs *FileSource) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	fs.subMu.Lock()
	id := fs.nextSubID
	fs.nextSubID++
	fs.subscribers[id] = ch
	fs.subMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-fs.ctx.Done():
		}
		fs.subMu.Lock()
		delete(fs.subscribers, id)
		fs.subMu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (fs *FileSource) notify() {
	fs.subMu.Lock()
	defer fs.subMu.Unlock()
	for _, ch := range fs.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Add stores one invocation. A root with an id already held replaces the
// older copy.
func (fs *FileSource) Add(inv invocation.Invocation) {
	replaced := fs.records.ReplaceFunc(func(old invocation.Invocation) bool {
		return old.ID == inv.ID
	}, inv)
	if !replaced {
		fs.records.Add(inv)
	}
}

// findJSONLFiles returns .jsonl files in the directory, oldest first by
// modification time.
func (fs *FileSource) findJSONLFiles() ([]string, error) {
	entries, err := os.ReadDir(fs.directory)
	if err != nil {
		return nil, err
	}

	type fileInfo struct {
		path    string
		modTime time.Time
	}
	var files []fileInfo

	for _, entry := range entries {
		if entry.IsDir() || !isJSONL(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(fs.directory, entry.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	result := make([]string, len(files))
	for i, f := range files {
		result[i] = f.path
	}
	return result, nil
}

func isJSONL(name string) bool {
	return strings.HasSuffix(name, ".jsonl")
}

// loadFile reads a file from its last known offset and returns the number
// of invocations stored.
func (fs *FileSource) loadFile(ctx context.Context, path string) (int, error) {
	fs.mu.Lock()
	offset := fs.fileOffsets[path]
	fs.mu.Unlock()

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	// a file shorter than our offset was truncated or rotated
	if info, err := file.Stat(); err == nil && info.Size() < offset {
		offset = 0
	}
	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			offset = 0
		}
	}

	reader := bufio.NewReaderSize(file, jsonlBufferInitial)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			// a complete record without a trailing newline still loads;
			// anything else is a partial write left for the next event
			tail := []byte(strings.TrimSpace(string(line)))
			var inv invocation.Invocation
			if len(tail) > 0 && json.Unmarshal(tail, &inv) == nil && inv.ID != "" {
				offset += int64(len(line))
				fs.Add(inv)
				count++
			}
			break
		}
		if err != nil {
			return count, fmt.Errorf("reading %s: %w", path, err)
		}
		offset += int64(len(line))

		line = []byte(strings.TrimSpace(string(line)))
		if len(line) == 0 {
			continue
		}
		if len(line) > jsonlBufferMax {
			if fs.verbose {
				log.Printf("⚠️  filesource: skipping oversized line in %s\n", filepath.Base(path))
			}
			continue
		}

		var inv invocation.Invocation
		if err := json.Unmarshal(line, &inv); err != nil {
			if fs.verbose {
				log.Printf("⚠️  filesource: bad line in %s: %v\n", filepath.Base(path), err)
			}
			continue
		}
		if inv.ID == "" {
			continue
		}
		fs.Add(inv)
		count++
	}

	fs.mu.Lock()
	fs.fileOffsets[path] = offset
	fs.mu.Unlock()

	return count, nil
}

func (fs *FileSource) watchLoop() {
	defer fs.wg.Done()

	for {
		select {
		case <-fs.ctx.Done():
			return

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isJSONL(event.Name) {
				continue
			}

			count, err := fs.loadFile(fs.ctx, event.Name)
			if err != nil {
				if fs.ctx.Err() == nil {
					log.Printf("⚠️  filesource: error reading %s: %v\n", event.Name, err)
				}
				continue
			}
			if count > 0 {
				if fs.verbose {
					log.Printf("📁 filesource: loaded %d new invocations from %s\n", count, filepath.Base(event.Name))
				}
				fs.notify()
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  filesource: watcher error: %v\n", err)
		}
	}
}

// Stats describes the file source.
type Stats struct {
	Directory    string `json:"directory"`
	FilesTracked int    `json:"files_tracked"`
	Invocations  int    `json:"invocations"`
}

// Stats returns current statistics.
func (fs *FileSource) Stats() Stats {
	fs.mu.Lock()
	filesTracked := len(fs.fileOffsets)
	fs.mu.Unlock()

	return Stats{
		Directory:    fs.directory,
		FilesTracked: filesTracked,
		Invocations:  fs.records.Size(),
	}
}
