package pgn

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/inhies/go-bytesize"
	"github.com/klauspost/compress/zstd"
)

// Source is an opened PGN document, possibly decompressed on the fly.
type Source struct {
	io.Reader
	// Size is the size of the file on disk.
	Size bytesize.ByteSize

	closers []func() error
}

// Close releases the decoder and the file.
func (s *Source) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenFile opens a PGN file. Files ending in .bz2 or .zst are decompressed.
func OpenFile(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	src := &Source{
		Reader:  file,
		Size:    bytesize.ByteSize(stat.Size()),
		closers: []func() error{file.Close},
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bz2":
		r, err := bzip2.NewReader(file, nil)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("bzip2 %s: %w", path, err)
		}
		src.Reader = r
		src.closers = append(src.closers, r.Close)
	case ".zst":
		r, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("zstd %s: %w", path, err)
		}
		src.Reader = r
		src.closers = append(src.closers, func() error {
			r.Close()
			return nil
		})
	}

	return src, nil
}

// ReadFile opens path and splits it into single-game texts.
func ReadFile(path string) ([]string, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	return SplitGames(src)
}
