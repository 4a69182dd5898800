package analytics

import (
	"context"
	"sort"
)

// DragonKing iterates all calendar days within the filter, crowns the
// per-day top sender (ties broken by the earliest message that day), and
// returns the per-member count of days won, ordered descending.
//
// Day bucketization uses the corpus timezone, applied in Go rather than in
// SQL so daylight-saving transitions land on the right calendar day.
func (e *Engine) DragonKing(ctx context.Context, corpusID string, f TimeFilter) (*DragonKingResult, error) {
	names, err := e.memberNames(ctx, corpusID)
	if err != nil {
		return nil, err
	}

	type dayStats struct {
		counts  map[int64]int64
		firstTS map[int64]int64
	}
	wins := make(map[int64]int64)
	totalDays := 0

	var curDay string
	var cur *dayStats

	closeDay := func() {
		if cur == nil {
			return
		}
		totalDays++
		var king int64
		var best int64 = -1
		var bestFirst int64
		for member, count := range cur.counts {
			first := cur.firstTS[member]
			if count > best || (count == best && first < bestFirst) {
				king, best, bestFirst = member, count, first
			}
		}
		wins[king]++
		cur = nil
	}

	err = e.forEachMessage(ctx, corpusID, f, func(r *scanRow) error {
		day := dayKey(r.TS, e.loc)
		if day != curDay {
			closeDay()
			curDay = day
			cur = &dayStats{
				counts:  make(map[int64]int64),
				firstTS: make(map[int64]int64),
			}
		}
		if _, seen := cur.firstTS[r.SenderID]; !seen {
			cur.firstTS[r.SenderID] = r.TS
		}
		cur.counts[r.SenderID]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	closeDay()

	out := &DragonKingResult{TotalDays: totalDays}
	for member, n := range wins {
		out.Rankings = append(out.Rankings, DragonKingRow{
			MemberID: member,
			Name:     names[member],
			DaysWon:  n,
		})
	}
	sort.Slice(out.Rankings, func(i, j int) bool {
		if out.Rankings[i].DaysWon != out.Rankings[j].DaysWon {
			return out.Rankings[i].DaysWon > out.Rankings[j].DaysWon
		}
		return out.Rankings[i].MemberID < out.Rankings[j].MemberID
	})
	return out, nil
}
