package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/sniff"
	"github.com/chatlab/chatlab/internal/textutil"
)

const maxLineBytes = 1 << 20 // 1 MiB

// offsetReader counts raw bytes consumed from the underlying file so
// progress can report byte positions even when a charset transform sits
// between the file and the line reader.
type offsetReader struct {
	r io.Reader
	n int64
}

func (o *offsetReader) Read(p []byte) (int, error) {
	n, err := o.r.Read(p)
	o.n += int64(n)
	return n, err
}

// lineReader reads a text export one line at a time, decoding to UTF-8 and
// trimming line terminators. It reads forward once; memory is bounded by
// maxLineBytes.
type lineReader struct {
	f    *os.File
	or   *offsetReader
	br   *bufio.Reader
	line int
}

// openLines opens path, detects its encoding from the head, and returns a
// reader positioned at the start of the decoded stream.
func openLines(path string) (*lineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, clerr.Wrap(clerr.KindIO, "open file", err)
	}

	head := make([]byte, sniff.HeadBytes)
	n, err := f.Read(head)
	if err != nil && n == 0 && err != io.EOF {
		f.Close()
		return nil, clerr.Wrap(clerr.KindIO, "read file head", err)
	}
	enc := textutil.DetectEncoding(head[:n])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, clerr.Wrap(clerr.KindIO, "rewind file", err)
	}

	or := &offsetReader{r: f}
	return &lineReader{
		f:  f,
		or: or,
		br: bufio.NewReader(textutil.DecodeReader(or, enc)),
	}, nil
}

// Close closes the underlying file.
func (lr *lineReader) Close() error {
	return lr.f.Close()
}

// Offset reports raw bytes consumed from the file so far.
func (lr *lineReader) Offset() int64 {
	return lr.or.n
}

// Line reports the 1-based number of the last line returned by Next.
func (lr *lineReader) Line() int {
	return lr.line
}

// Next returns the next line with the terminator removed. io.EOF signals the
// end of the stream; a final line without a terminator is still returned.
func (lr *lineReader) Next() (string, error) {
	var out []byte
	for {
		b, err := lr.br.ReadBytes('\n')
		out = append(out, b...)
		if len(out) > maxLineBytes {
			return "", fmt.Errorf("line %d exceeds max length (%d bytes)", lr.line+1, maxLineBytes)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err == io.EOF {
			if len(out) == 0 {
				return "", io.EOF
			}
			break
		}
		return "", err
	}
	lr.line++
	return strings.TrimRight(string(out), "\r\n"), nil
}
