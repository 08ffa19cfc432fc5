// Package blob stores immutable payloads under their content address.
//
// A payload is written to <dir>/<cid><ext>, where cid is the hex SHA-256 of
// the bytes and ext is a rendering hint taken from the upload filename.
// Writing the same bytes again overwrites the file in place with identical
// content. Reads go through an in-memory cache keyed by cid.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/afero"

	"github.com/roach88/mnemosyne/internal/ir"
	"github.com/roach88/mnemosyne/internal/metrics"
)

const (
	// DefaultCacheTTL bounds how long a payload stays in the read cache.
	DefaultCacheTTL = 10 * time.Minute

	// DefaultCacheMaxBytes is the largest payload the read cache will hold.
	DefaultCacheMaxBytes = 1 << 20
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// Options configures a Store.
//
// A negative CacheMaxBytes disables the read cache.
type Options struct {
	CacheTTL      time.Duration
	CacheMaxBytes int64
	Metrics       *metrics.Metrics
}

// Store is a content-addressed blob store on an afero filesystem.
// It is safe for concurrent use.
type Store struct {
	fs       afero.Fs
	dir      string
	cache    *gocache.Cache
	maxBytes int64
	metrics  *metrics.Metrics
}

// Open prepares dir on fsys and returns a Store rooted there.
func Open(fsys afero.Fs, dir string, opts Options) (*Store, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, ir.IOFailure("create blob dir", dir, err)
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	maxBytes := opts.CacheMaxBytes
	if maxBytes == 0 {
		maxBytes = DefaultCacheMaxBytes
	}
	return &Store{
		fs:       fsys,
		dir:      dir,
		cache:    gocache.New(ttl, 2*ttl),
		maxBytes: maxBytes,
		metrics:  opts.Metrics,
	}, nil
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data and returns its cid. The filename only contributes its
// extension to the stored name.
func (s *Store) Put(ctx context.Context, data []byte, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cid := ir.ContentID(data)
	path := filepath.Join(s.dir, cid+Ext(filename))

	// Each writer gets its own temp file, so concurrent puts of the same
	// bytes never rename one another's file away.
	f, err := afero.TempFile(s.fs, s.dir, cid+"-*.tmp")
	if err != nil {
		return "", ir.IOFailure("write blob", cid, err)
	}
	tmp := f.Name()
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = s.fs.Remove(tmp)
		return "", ir.IOFailure("write blob", cid, werr)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return "", ir.IOFailure("write blob", cid, err)
	}
	s.remember(cid, data)
	return cid, nil
}

// Get returns the payload stored under cid.
func (s *Store) Get(ctx context.Context, cid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cid); ok {
		s.metrics.CacheLookup(true)
		return slices.Clone(v.([]byte)), nil
	}
	s.metrics.CacheLookup(false)
	path, err := s.Path(cid)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ir.NotFound("blob", cid)
		}
		return nil, ir.IOFailure("read blob", cid, err)
	}
	s.remember(cid, data)
	return data, nil
}

// Path resolves the on-disk location of cid, whatever extension it was
// stored with. In-flight temp files are never returned.
func (s *Store) Path(cid string) (string, error) {
	if !ir.ValidCID(cid) {
		return "", ir.Invalid("malformed cid %q", cid)
	}
	matches, err := afero.Glob(s.fs, filepath.Join(s.dir, cid+"*"))
	if err != nil {
		return "", ir.IOFailure("locate blob", cid, err)
	}
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			return m, nil
		}
	}
	return "", ir.NotFound("blob", cid)
}

// Has reports whether a payload exists for cid.
func (s *Store) Has(cid string) bool {
	_, err := s.Path(cid)
	return err == nil
}

func (s *Store) remember(cid string, data []byte) {
	if s.maxBytes < 0 || int64(len(data)) > s.maxBytes {
		return
	}
	s.cache.SetDefault(cid, slices.Clone(data))
}

// Ext returns the lowercased extension of filename when it is a plausible
// file extension, or "".
func Ext(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// String implements fmt.Stringer.
func (s *Store) String() string {
	return fmt.Sprintf("blob.Store(%s)", s.dir)
}
