package analytics

import (
	"context"
	"sort"
	"unicode/utf8"

	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/textutil"
)

// Catchphrases returns each member's most repeated text messages, after
// whitespace normalization and length filtering. Ties break toward the most
// recently used phrase.
func (e *Engine) Catchphrases(ctx context.Context, corpusID string, f TimeFilter, opts CatchphraseOptions) (*CatchphraseResult, error) {
	opts = opts.withDefaults()

	names, err := e.memberNames(ctx, corpusID)
	if err != nil {
		return nil, err
	}

	type phrase struct {
		count  int64
		lastTS int64
	}
	perMember := make(map[int64]map[string]*phrase)

	err = e.forEachMessage(ctx, corpusID, f, func(r *scanRow) error {
		if r.Kind != string(event.KindText) || !r.Content.Valid {
			return nil
		}
		content := textutil.CollapseSpace(r.Content.String)
		n := utf8.RuneCountInString(content)
		if n < opts.MinLen || n > opts.MaxLen {
			return nil
		}
		phrases, ok := perMember[r.SenderID]
		if !ok {
			phrases = make(map[string]*phrase)
			perMember[r.SenderID] = phrases
		}
		p, ok := phrases[content]
		if !ok {
			p = &phrase{}
			phrases[content] = p
		}
		p.count++
		if r.TS > p.lastTS {
			p.lastTS = r.TS
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := &CatchphraseResult{}
	for member, phrases := range perMember {
		mc := MemberCatchphrases{MemberID: member, Name: names[member]}

		type entry struct {
			content string
			p       *phrase
		}
		entries := make([]entry, 0, len(phrases))
		for content, p := range phrases {
			entries = append(entries, entry{content, p})
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].p.count != entries[j].p.count {
				return entries[i].p.count > entries[j].p.count
			}
			return entries[i].p.lastTS > entries[j].p.lastTS
		})
		if len(entries) > opts.TopK {
			entries = entries[:opts.TopK]
		}
		for _, en := range entries {
			mc.Catchphrases = append(mc.Catchphrases, Catchphrase{Content: en.content, Count: en.p.count})
		}
		if len(mc.Catchphrases) > 0 {
			out.Members = append(out.Members, mc)
		}
	}
	sort.Slice(out.Members, func(i, j int) bool {
		return out.Members[i].MemberID < out.Members[j].MemberID
	})
	return out, nil
}
