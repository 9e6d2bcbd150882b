package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/indexer/index"
)

// Reader gives access to one validated segment file. OpenReader verifies the
// magic bytes, format version, and every section checksum before returning,
// so a Reader that opened successfully can be trusted end to end.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	meta     Meta
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	version := binary.LittleEndian.Uint32(headerBytes[4:8])
	if version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported segment version %d", version)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    version,
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		MetaOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		MetaSize:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stating segment file: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, stat.Size()-int64(FooterSize)); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}
	dictChecksum := binary.LittleEndian.Uint32(footer[0:4])
	metaChecksum := binary.LittleEndian.Uint32(footer[4:8])
	postChecksum := binary.LittleEndian.Uint32(footer[12:16])

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if got := crc32.ChecksumIEEE(dictBytes); got != dictChecksum {
		f.Close()
		return nil, fmt.Errorf("dictionary checksum mismatch: %08x != %08x", got, dictChecksum)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	metaBytes := make([]byte, header.MetaSize)
	if _, err := f.ReadAt(metaBytes, header.MetaOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if got := crc32.ChecksumIEEE(metaBytes); got != metaChecksum {
		f.Close()
		return nil, fmt.Errorf("metadata checksum mismatch: %08x != %08x", got, metaChecksum)
	}
	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	postBytes := make([]byte, header.PostSize)
	if _, err := f.ReadAt(postBytes, header.PostOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading postings section: %w", err)
	}
	if got := crc32.ChecksumIEEE(postBytes); got != postChecksum {
		f.Close()
		return nil, fmt.Errorf("postings checksum mismatch: %08x != %08x", got, postChecksum)
	}

	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		meta:     meta,
	}, nil
}

// ReadAll streams every term entry to fn in dictionary order.
func (r *Reader) ReadAll(fn func(index.TermEntry) error) error {
	for _, entry := range r.dict {
		postingsBytes := make([]byte, entry.PostLen)
		if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
			return fmt.Errorf("reading postings for term %q: %w", entry.Term, err)
		}
		var postings index.PostingList
		if err := json.Unmarshal(postingsBytes, &postings); err != nil {
			return fmt.Errorf("parsing postings for term %q: %w", entry.Term, err)
		}
		if err := fn(index.TermEntry{Term: entry.Term, Postings: postings}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) Engine() string {
	return r.meta.Engine
}

func (r *Reader) DocLengths() map[string]int {
	return r.meta.DocLengths
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() int {
	return int(r.header.DocCount)
}

func (r *Reader) CreatedAt() int64 {
	return r.meta.CreatedAt
}

func (r *Reader) Close() error {
	return r.file.Close()
}
