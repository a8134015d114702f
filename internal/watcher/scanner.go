package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/Ning0612/Hotfolder/internal/adapter"
	"github.com/Ning0612/Hotfolder/internal/domain"
	"github.com/Ning0612/Hotfolder/internal/logger"
)

// scanBatch is how many directory entries are read per call
const scanBatch = 64

// Scanner enumerates candidate files in the watched folder
type Scanner struct {
	source adapter.Source
	ignore []string
}

// NewScanner creates a scanner. ignore holds path.Match patterns applied
// to entry names on top of the built-in dot-file rule.
func NewScanner(source adapter.Source, ignore []string) *Scanner {
	return &Scanner{source: source, ignore: ignore}
}

// Scan lazily yields the regular, visible files of the folder. Every call
// reads the directory afresh. An entry that cannot be stat'ed is skipped.
// A failure to enumerate yields one error wrapping domain.ErrEnumeration
// and ends the sequence.
func (s *Scanner) Scan(ctx context.Context) iter.Seq2[domain.FileEntry, error] {
	return func(yield func(domain.FileEntry, error) bool) {
		stream, err := s.source.OpenDir(ctx)
		if err != nil {
			if ctx.Err() != nil {
				yield(domain.FileEntry{}, ctx.Err())
				return
			}
			yield(domain.FileEntry{}, fmt.Errorf("%w: %w", domain.ErrEnumeration, err))
			return
		}
		defer stream.Close()

		for {
			if err := ctx.Err(); err != nil {
				yield(domain.FileEntry{}, err)
				return
			}

			batch, err := stream.Next(scanBatch)
			for _, entry := range batch {
				if entry.Err != nil {
					logger.Get().Warn("skipping unreadable entry", "name", entry.Name, "error", entry.Err)
					continue
				}
				if !s.include(entry) {
					continue
				}
				if !yield(domain.EntryFromInfo(entry.Info), nil) {
					return
				}
			}

			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(domain.FileEntry{}, fmt.Errorf("%w: %w", domain.ErrEnumeration, err))
				return
			}
		}
	}
}

func (s *Scanner) include(entry adapter.DirEntry) bool {
	if strings.HasPrefix(entry.Name, ".") {
		return false
	}
	if !entry.Info.IsFile() {
		return false
	}
	for _, pattern := range s.ignore {
		if ok, _ := path.Match(pattern, entry.Name); ok {
			return false
		}
	}
	return true
}
