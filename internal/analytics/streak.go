package analytics

import (
	"context"
	"sort"
)

// MonologueStreaks finds maximal runs of consecutive messages from the same
// sender where each consecutive pair lands within the idle gap, and
// aggregates them per member. The single longest run is reported as the
// all-time combo record; on equal length the more recent run wins.
func (e *Engine) MonologueStreaks(ctx context.Context, corpusID string, f TimeFilter, opts StreakOptions) (*StreakResult, error) {
	opts = opts.withDefaults()

	names, err := e.memberNames(ctx, corpusID)
	if err != nil {
		return nil, err
	}

	stats := make(map[int64]*MemberStreaks)
	var record *ComboRecord

	var runSender int64
	var runLen int64
	var runStartTS int64
	var prevTS int64
	active := false

	closeRun := func() {
		if !active || runLen < int64(opts.MinRun) {
			return
		}
		ms, ok := stats[runSender]
		if !ok {
			ms = &MemberStreaks{MemberID: runSender, Name: names[runSender]}
			stats[runSender] = ms
		}
		ms.TotalStreaks++
		if runLen > ms.MaxCombo {
			ms.MaxCombo = runLen
		}
		switch {
		case runLen < 5:
			ms.LowStreak++
		case runLen < 10:
			ms.MidStreak++
		default:
			ms.HighStreak++
		}
		// Most recent wins on ties, so >= not >.
		if record == nil || runLen >= record.ComboLength {
			record = &ComboRecord{MemberID: runSender, ComboLength: runLen, StartTS: runStartTS}
		}
	}

	err = e.forEachMessage(ctx, corpusID, f, func(r *scanRow) error {
		if active && r.SenderID == runSender && r.TS-prevTS <= opts.IdleGap {
			runLen++
		} else {
			closeRun()
			runSender = r.SenderID
			runLen = 1
			runStartTS = r.TS
			active = true
		}
		prevTS = r.TS
		return nil
	})
	if err != nil {
		return nil, err
	}
	closeRun()

	out := &StreakResult{MaxComboRecord: record}
	for _, ms := range stats {
		out.Members = append(out.Members, *ms)
	}
	sort.Slice(out.Members, func(i, j int) bool {
		if out.Members[i].TotalStreaks != out.Members[j].TotalStreaks {
			return out.Members[i].TotalStreaks > out.Members[j].TotalStreaks
		}
		return out.Members[i].MemberID < out.Members[j].MemberID
	})
	return out, nil
}
