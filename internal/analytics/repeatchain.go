package analytics

import (
	"context"
	"sort"
	"strings"

	"github.com/chatlab/chatlab/internal/event"
)

// chain tracks one in-progress repeat chain during the scan.
type chain struct {
	text     string
	senders  []int64
	seen     map[int64]bool
	startTS  int64
	lastTS   int64
}

// RepeatChains finds maximal runs of distinct senders echoing identical
// trimmed text within the idle gap (length >= 2) and derives the
// originator / initiator / breaker statistics, the chain length histogram,
// and the top echoed contents.
func (e *Engine) RepeatChains(ctx context.Context, corpusID string, f TimeFilter, opts ChainOptions) (*RepeatChainResult, error) {
	opts = opts.withDefaults()

	names, err := e.memberNames(ctx, corpusID)
	if err != nil {
		return nil, err
	}
	totals, err := e.messageCounts(ctx, corpusID, f)
	if err != nil {
		return nil, err
	}

	originators := make(map[int64]int64)
	initiators := make(map[int64]int64)
	breakers := make(map[int64]int64)
	distribution := make(map[int]int64)

	type contentStats struct {
		count      int64
		maxLen     int
		lastTS     int64
		originator int64
	}
	hot := make(map[string]*contentStats)

	var cur *chain
	// breakText is the text of the most recently ended chain; the first
	// following message with different content credits its sender as the
	// breaker.
	var breakText string
	breakPending := false

	closeChain := func() {
		if cur == nil {
			return
		}
		c := cur
		cur = nil
		if len(c.senders) < 2 {
			return
		}
		originators[c.senders[0]]++
		initiators[c.senders[1]]++
		distribution[len(c.senders)]++

		cs, ok := hot[c.text]
		if !ok {
			cs = &contentStats{}
			hot[c.text] = cs
		}
		cs.count++
		if len(c.senders) > cs.maxLen {
			cs.maxLen = len(c.senders)
			cs.originator = c.senders[0]
		}
		if c.lastTS > cs.lastTS {
			cs.lastTS = c.lastTS
		}

		breakText = c.text
		breakPending = true
	}

	err = e.forEachMessage(ctx, corpusID, f, func(r *scanRow) error {
		text := ""
		isText := r.Kind == string(event.KindText) && r.Content.Valid
		if isText {
			text = strings.TrimSpace(r.Content.String)
		}

		if cur != nil {
			if isText && text == cur.text && r.TS-cur.lastTS <= opts.IdleGap && !cur.seen[r.SenderID] {
				cur.senders = append(cur.senders, r.SenderID)
				cur.seen[r.SenderID] = true
				cur.lastTS = r.TS
				return nil
			}
			closeChain()
		}

		if breakPending && (!isText || text != breakText) {
			breakers[r.SenderID]++
			breakPending = false
		}

		if isText && text != "" {
			cur = &chain{
				text:    text,
				senders: []int64{r.SenderID},
				seen:    map[int64]bool{r.SenderID: true},
				startTS: r.TS,
				lastTS:  r.TS,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	closeChain()

	out := &RepeatChainResult{
		ChainLengthDistribution: distribution,
		Originators:             chainStats(originators, names, totals),
		Initiators:              chainStats(initiators, names, totals),
		Breakers:                chainStats(breakers, names, totals),
	}

	for text, cs := range hot {
		out.HotContents = append(out.HotContents, HotContent{
			Content:        text,
			OriginatorName: names[cs.originator],
			Count:          cs.count,
			MaxChainLength: cs.maxLen,
			LastTS:         cs.lastTS,
		})
	}
	sort.Slice(out.HotContents, func(i, j int) bool {
		a, b := out.HotContents[i], out.HotContents[j]
		if a.MaxChainLength != b.MaxChainLength {
			return a.MaxChainLength > b.MaxChainLength
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.LastTS > b.LastTS
	})
	if len(out.HotContents) > 10 {
		out.HotContents = out.HotContents[:10]
	}
	return out, nil
}

func chainStats(counts map[int64]int64, names map[int64]string, totals map[int64]int64) []MemberChainStat {
	var out []MemberChainStat
	for member, n := range counts {
		stat := MemberChainStat{MemberID: member, Name: names[member], Count: n}
		if total := totals[member]; total > 0 {
			stat.Rate = float64(n) / float64(total)
		}
		out = append(out, stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out
}
