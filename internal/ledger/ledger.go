// Package ledger implements the append-only JSONL event streams.
//
// Each stream is a single file <dir>/<stream>.jsonl holding one RFC 8785
// canonical JSON record per line. Records are never rewritten or removed.
// Appends to a stream are serialized by a per-stream mutex and land in a
// single Write on an O_APPEND handle. Readers take no lock: a final line
// without a trailing newline is an in-flight write and is not yielded.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/roach88/mnemosyne/internal/ir"
)

// Record is a decoded ledger line.
type Record = ir.Object

// Ledger is the set of streams under one directory.
// It is safe for concurrent use.
type Ledger struct {
	fs  afero.Fs
	dir string

	mu    sync.Mutex
	locks map[ir.Stream]*sync.Mutex
}

// Open prepares dir on fsys and returns a Ledger rooted there.
func Open(fsys afero.Fs, dir string) (*Ledger, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, ir.IOFailure("create ledger dir", dir, err)
	}
	return &Ledger{
		fs:    fsys,
		dir:   dir,
		locks: make(map[ir.Stream]*sync.Mutex),
	}, nil
}

// Path returns the file backing stream.
func (l *Ledger) Path(stream ir.Stream) string {
	return filepath.Join(l.dir, string(stream)+".jsonl")
}

func (l *Ledger) lock(stream ir.Stream) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[stream]
	if !ok {
		m = &sync.Mutex{}
		l.locks[stream] = m
	}
	return m
}

// Append writes rec as one canonical JSON line at the end of stream.
func (l *Ledger) Append(ctx context.Context, stream ir.Stream, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := ir.MarshalCanonical(rec)
	if err != nil {
		return ir.Invalid("encode %s record: %v", stream, err)
	}
	line = append(line, '\n')

	m := l.lock(stream)
	m.Lock()
	defer m.Unlock()

	f, err := l.fs.OpenFile(l.Path(stream), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return ir.IOFailure("open ledger", string(stream), err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return ir.IOFailure("append ledger", string(stream), err)
	}
	if err := f.Close(); err != nil {
		return ir.IOFailure("close ledger", string(stream), err)
	}
	return nil
}

// Scan yields the records of stream in append order. A missing stream
// yields nothing. Iteration stops at the first error, which is yielded
// with a nil record.
//
// The sequence is restartable: every range over it re-opens the file.
func (l *Ledger) Scan(ctx context.Context, stream ir.Stream) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		f, err := l.fs.Open(l.Path(stream))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return
			}
			yield(nil, ir.IOFailure("open ledger", string(stream), err))
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for lineNo := 1; ; lineNo++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			line, err := r.ReadBytes('\n')
			if errors.Is(err, io.EOF) {
				// Unterminated tail, if any, is still being written.
				return
			}
			if err != nil {
				yield(nil, ir.IOFailure("read ledger", string(stream), err))
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			var rec Record
			if err := json.Unmarshal(line, &rec); err != nil {
				yield(nil, ir.Corrupt(fmt.Sprintf("%s.jsonl:%d", stream, lineNo), err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// FindByCID returns the first record of stream whose "cid" equals cid.
// This is a linear scan over the whole stream.
func (l *Ledger) FindByCID(ctx context.Context, stream ir.Stream, cid string) (Record, bool, error) {
	for rec, err := range l.Scan(ctx, stream) {
		if err != nil {
			return nil, false, err
		}
		if rec.Str("cid") == cid {
			return rec, true, nil
		}
	}
	return nil, false, nil
}

// Count returns the number of complete records in stream.
func (l *Ledger) Count(ctx context.Context, stream ir.Stream) (int, error) {
	n := 0
	for _, err := range l.Scan(ctx, stream) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
