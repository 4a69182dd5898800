// Package textutil provides text manipulation and encoding utilities.
//
// Chat exports arrive in whatever encoding the source platform felt like
// writing: QQ and older WeChat tools emit GB18030 or Big5, LINE emits UTF-8
// with or without a BOM. Everything entering the pipeline is decoded to
// UTF-8 here.
package textutil

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}

// DetectEncoding inspects a sample (typically the file head) and returns the
// encoding to decode it with. UTF-8 input, BOM or not, returns nil meaning
// no transformation is needed.
func DetectEncoding(sample []byte) encoding.Encoding {
	sample = StripBOM(sample)
	if utf8.Valid(sample) {
		return nil
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(sample)
	if err == nil && result.Confidence >= 50 {
		if enc := EncodingByName(result.Charset); enc != nil {
			return enc
		}
	}

	// Chat exports from Chinese platforms dominate the non-UTF-8 cases.
	candidates := []encoding.Encoding{
		simplifiedchinese.GB18030,
		traditionalchinese.Big5,
		japanese.ShiftJIS,
		korean.EUCKR,
		charmap.Windows1252,
	}
	for _, enc := range candidates {
		decoded, err := enc.NewDecoder().Bytes(sample)
		if err == nil && utf8.Valid(decoded) {
			return enc
		}
	}
	return nil
}

// DecodeReader wraps r so it yields UTF-8, decoding from enc when non-nil
// and stripping a leading BOM either way.
func DecodeReader(r io.Reader, enc encoding.Encoding) io.Reader {
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}
	return &bomStripReader{r: r}
}

type bomStripReader struct {
	r       io.Reader
	checked bool
}

func (b *bomStripReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head := make([]byte, len(utf8BOM))
		n, err := io.ReadFull(b.r, head)
		head = head[:n]
		if n > 0 && !bytes.Equal(head, utf8BOM) {
			b.r = io.MultiReader(bytes.NewReader(head), b.r)
		}
		if err != nil && err != io.ErrUnexpectedEOF && n == 0 {
			return 0, err
		}
	}
	return b.r.Read(p)
}

// EnsureUTF8 ensures a string is valid UTF-8. If already valid, it is
// returned as-is; otherwise detection and conversion are attempted, falling
// back to replacing invalid bytes.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	if enc := DetectEncoding([]byte(s)); enc != nil {
		decoded, err := enc.NewDecoder().Bytes([]byte(s))
		if err == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return SanitizeUTF8(s)
}

// SanitizeUTF8 replaces invalid UTF-8 bytes with the replacement character.
func SanitizeUTF8(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune('�')
			i++
		} else {
			sb.WriteRune(r)
			i += size
		}
	}
	return sb.String()
}

// EncodingByName returns an encoding for the given IANA charset name.
func EncodingByName(name string) encoding.Encoding {
	switch name {
	case "windows-1252", "CP1252", "cp1252":
		return charmap.Windows1252
	case "ISO-8859-1", "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1
	case "Shift_JIS", "shift_jis", "shift-jis", "sjis":
		return japanese.ShiftJIS
	case "EUC-JP", "euc-jp", "eucjp":
		return japanese.EUCJP
	case "EUC-KR", "euc-kr", "euckr":
		return korean.EUCKR
	case "GB2312", "gb2312", "GBK", "gbk":
		return simplifiedchinese.GBK
	case "GB18030", "gb18030", "GB-18030":
		return simplifiedchinese.GB18030
	case "Big5", "big5", "big-5":
		return traditionalchinese.Big5
	default:
		return nil
	}
}

// NormalizeNewlines converts CRLF and bare CR line endings to LF.
func NormalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// CollapseSpace trims a string and collapses interior runs of whitespace to
// a single space. Used when comparing catchphrase content.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes truncates a string to maxRunes runes (not bytes), adding
// "..." if truncated. UTF-8 safe.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}

// FirstLine returns the first line of a string. Leading newlines are trimmed
// before extracting.
func FirstLine(s string) string {
	s = strings.TrimLeft(s, "\r\n")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}
