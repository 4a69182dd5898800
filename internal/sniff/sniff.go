// Package sniff identifies the export format of a chat-log file.
//
// Each parser contributes a Descriptor declaring the extensions it accepts
// and regular-expression signatures matched against the decoded head of the
// file. Sniffing filters by extension, reads the head once, keeps descriptors
// with at least one matching signature, and picks the lowest-priority
// survivor; ties break on lexicographic id for determinism.
package sniff

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/textutil"
)

// HeadBytes is how much of the file the sniffer reads for signature matching.
const HeadBytes = 64 * 1024

// Descriptor declares how to recognize one export format.
type Descriptor struct {
	// ID uniquely names the format, e.g. "line_txt". Used as the tie-breaker.
	ID string

	// Name is the human-readable format name shown in logs and errors.
	Name string

	// Platform is the platform tag recorded on the corpus, e.g. "line".
	Platform string

	// Priority ranks descriptors when several match; lower wins.
	Priority int

	// Extensions lists accepted file extensions, lower-case with dot
	// (".txt", ".json"). Empty means any extension.
	Extensions []string

	// Signatures are matched against the decoded, CR-normalized head.
	// At least one must match for the descriptor to survive sniffing.
	Signatures []*regexp.Regexp
}

// acceptsExtension reports whether the descriptor accepts the file's extension.
func (d Descriptor) acceptsExtension(path string) bool {
	if len(d.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range d.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// matches reports whether any signature matches the decoded head.
func (d Descriptor) matches(head string) bool {
	for _, sig := range d.Signatures {
		if sig.MatchString(head) {
			return true
		}
	}
	return false
}

// Registry holds the known parser descriptors.
type Registry struct {
	descriptors []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a descriptor. Registering two descriptors with the same ID
// is a programming error and panics.
func (r *Registry) Register(d Descriptor) {
	for _, existing := range r.descriptors {
		if existing.ID == d.ID {
			panic(fmt.Sprintf("sniff: duplicate descriptor id %q", d.ID))
		}
	}
	r.descriptors = append(r.descriptors, d)
}

// Descriptors returns the registered descriptors.
func (r *Registry) Descriptors() []Descriptor {
	return r.descriptors
}

// ReadHead reads up to HeadBytes from the file and decodes it to UTF-8 with
// the BOM stripped and CR line endings normalized to LF.
func ReadHead(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", clerr.Wrap(clerr.KindIO, "open file", err)
	}
	defer f.Close()

	buf := make([]byte, HeadBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", clerr.Wrap(clerr.KindIO, "read file head", err)
	}
	raw := buf[:n]

	enc := textutil.DetectEncoding(raw)
	if enc != nil {
		decoded, decErr := enc.NewDecoder().Bytes(textutil.StripBOM(raw))
		if decErr == nil {
			raw = decoded
		}
	} else {
		raw = textutil.StripBOM(raw)
	}

	return textutil.NormalizeNewlines(textutil.SanitizeUTF8(string(raw))), nil
}

// Sniff identifies the format of the file at path. Returns the winning
// descriptor or a KindUnknownFormat error when nothing matches.
func (r *Registry) Sniff(path string) (Descriptor, error) {
	var byExt []Descriptor
	for _, d := range r.descriptors {
		if d.acceptsExtension(path) {
			byExt = append(byExt, d)
		}
	}
	if len(byExt) == 0 {
		return Descriptor{}, clerr.New(clerr.KindUnknownFormat,
			"no parser accepts extension %q", filepath.Ext(path))
	}

	head, err := ReadHead(path)
	if err != nil {
		return Descriptor{}, err
	}

	var matched []Descriptor
	for _, d := range byExt {
		if d.matches(head) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return Descriptor{}, clerr.New(clerr.KindUnknownFormat,
			"no format signature matched %s", filepath.Base(path))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Priority != matched[j].Priority {
			return matched[i].Priority < matched[j].Priority
		}
		return matched[i].ID < matched[j].ID
	})
	return matched[0], nil
}
