package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/zsiec/nalpace/internal/pacer"
)

// recordHeaderSize is the 8-byte timestamp plus the 4-byte sample length.
const recordHeaderSize = 12

// maxRecordSize bounds a sample read back from a dump.
const maxRecordSize = 16 << 20

// ErrRecordTooLarge is returned by ReadRecord for an implausible length.
var ErrRecordTooLarge = errors.New("dump record too large")

// FileSink writes each non-empty sample as a record: an 8-byte big-endian
// timestamp in microseconds, a 4-byte big-endian length, then the sample.
type FileSink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	n      int64
}

// NewFileSink writes records to w.
func NewFileSink(w io.Writer) *FileSink {
	s := &FileSink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// CreateFileSink creates or truncates the file at path.
func CreateFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dump: %w", err)
	}
	return NewFileSink(f), nil
}

// WriteSample appends one record. Empty samples are skipped.
func (s *FileSink) WriteSample(_ pacer.TrackKind, timestampUs uint64, sample []byte) error {
	if len(sample) == 0 {
		return nil
	}

	var hdr [recordHeaderSize]byte
	binary.BigEndian.PutUint64(hdr[:8], timestampUs)
	binary.BigEndian.PutUint32(hdr[8:], uint32(len(sample)))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := s.w.Write(sample); err != nil {
		return err
	}
	s.n++
	return s.w.Flush()
}

// Records returns the number of records written.
func (s *FileSink) Records() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Close flushes buffered data and closes the underlying writer if it is an
// io.Closer.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.w.Flush()
	if s.closer != nil {
		err = errors.Join(err, s.closer.Close())
		s.closer = nil
	}
	return err
}

// ReadRecord reads one record written by FileSink. It returns io.EOF at a
// clean end of input and io.ErrUnexpectedEOF for a truncated record.
func ReadRecord(r io.Reader) (timestampUs uint64, sample []byte, err error) {
	var hdr [recordHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	timestampUs = binary.BigEndian.Uint64(hdr[:8])
	n := binary.BigEndian.Uint32(hdr[8:])
	if n > maxRecordSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, n)
	}
	sample = make([]byte, n)
	if _, err := io.ReadFull(r, sample); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return timestampUs, sample, nil
}
