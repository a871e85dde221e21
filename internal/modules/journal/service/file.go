package service

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"trade_guard/internal/models"
)

// File keeps one JSON document per line. Writes are serialized and
// synced before Append returns.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) (*File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "journal dir %s", dir)
		}
	}
	return &File{path: path}, nil
}

func (f *File) Append(_ context.Context, e models.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.ID == 0 {
		e.ID = e.ClosedAt.UnixNano()
	}
	line, err := sonic.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "encode journal entry")
	}
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open journal")
	}
	defer fh.Close()

	if _, err := fh.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "write journal")
	}
	return errors.Wrap(fh.Sync(), "sync journal")
}

func (f *File) Since(_ context.Context, from time.Time) ([]models.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	defer fh.Close()

	var out []models.JournalEntry
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e models.JournalEntry
		if err := sonic.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, errors.Wrapf(err, "journal line %d", line)
		}
		if !e.ClosedAt.Before(from) {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read journal")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	return out, nil
}
