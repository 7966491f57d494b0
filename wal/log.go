package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/intellect4all/bonsaitree/internal/telemetry"
)

var logLog = telemetry.Component("wal.log")

const (
	logMagic      = "BNSW"
	logVersion    = uint32(1)
	logHeaderSize = 8 // magic(4) + version(4)

	lengthPrefixSize = 4 // each record is framed with a uint32 byte length
)

// Log is an append-only physical WAL: every record is a length-prefixed,
// checksummed frame (spec §6's WAL record set). It is the collaborator
// the tree core treats as an external interface (spec §1); this package
// provides a concrete, file-backed implementation of it.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	offset int64
}

// Open creates or opens a WAL file at path.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}

	l := &Log{file: f, path: path}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if stat.Size() == 0 {
		if err := l.writeHeader(); err != nil {
			f.Close()
			return nil, err
		}
		l.offset = logHeaderSize
	} else {
		if err := l.validateHeader(); err != nil {
			f.Close()
			return nil, err
		}
		end, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			f.Close()
			return nil, err
		}
		l.offset = end
	}

	logLog.Info("wal opened", zap.String("path", path), zap.Int64("offset", l.offset))
	return l, nil
}

func (l *Log) writeHeader() error {
	h := make([]byte, logHeaderSize)
	copy(h[0:4], logMagic)
	binary.BigEndian.PutUint32(h[4:8], logVersion)
	_, err := l.file.WriteAt(h, 0)
	return err
}

func (l *Log) validateHeader() error {
	h := make([]byte, logHeaderSize)
	if _, err := l.file.ReadAt(h, 0); err != nil {
		return fmt.Errorf("wal: read header: %w", err)
	}
	if string(h[0:4]) != logMagic {
		return fmt.Errorf("wal: bad magic %q", h[0:4])
	}
	if v := binary.BigEndian.Uint32(h[4:8]); v != logVersion {
		return fmt.Errorf("wal: unsupported version %d", v)
	}
	return nil
}

// Append writes one record and returns its assigned LSN (its offset in
// the log, which is monotonic for the life of the file).
func (l *Log) Append(r Record) (LSN, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	body := r.encode()
	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)

	lsn := LSN(l.offset)
	if _, err := l.file.WriteAt(frame, l.offset); err != nil {
		return 0, fmt.Errorf("wal: append: %w", err)
	}
	l.offset += int64(len(frame))
	return lsn, nil
}

// ReadAll reads every complete record currently in the log, in order, for
// recovery replay.
func (l *Log) ReadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var records []Record
	off := int64(logHeaderSize)
	for off < l.offset {
		lenBuf := make([]byte, lengthPrefixSize)
		if _, err := l.file.ReadAt(lenBuf, off); err != nil {
			if err == io.EOF {
				break
			}
			return records, fmt.Errorf("wal: read length at %d: %w", off, err)
		}
		bodyLen := binary.BigEndian.Uint32(lenBuf)
		body := make([]byte, bodyLen)
		if _, err := l.file.ReadAt(body, off+lengthPrefixSize); err != nil {
			if err == io.EOF {
				break
			}
			return records, fmt.Errorf("wal: read body at %d: %w", off, err)
		}

		rec, err := decodeRecord(body)
		if err != nil {
			// A torn write at the tail of the log is expected after a
			// crash; stop replay at the first corrupt record rather than
			// failing recovery outright.
			logLog.Warn("stopping replay at torn record", zap.Int64("offset", off), zap.Error(err))
			break
		}
		rec.LSN = LSN(off)
		records = append(records, rec)
		off += int64(lengthPrefixSize) + int64(bodyLen)
	}
	return records, nil
}

// Truncate discards all records, keeping only the header — called after a
// successful checkpoint once every page is known durable on disk.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Truncate(logHeaderSize); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	l.offset = logHeaderSize
	return nil
}

// Sync flushes buffered writes to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Sync()
}

// Close syncs and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
