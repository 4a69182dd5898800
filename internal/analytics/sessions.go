package analytics

import "context"

// Sessions partitions the corpus into conversation bursts: a new session
// starts when the gap to the previous message exceeds idleGap seconds.
func (e *Engine) Sessions(ctx context.Context, corpusID string, f TimeFilter, idleGap int64) ([]SessionRow, error) {
	if idleGap <= 0 {
		idleGap = 1800
	}

	var out []SessionRow
	var cur *SessionRow
	var prevTS int64

	err := e.forEachMessage(ctx, corpusID, f, func(r *scanRow) error {
		if cur == nil || r.TS-prevTS > idleGap {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &SessionRow{
				ID:             int64(len(out)) + 1,
				StartTS:        r.TS,
				FirstMessageID: r.ID,
			}
		}
		cur.EndTS = r.TS
		cur.MessageCount++
		prevTS = r.TS
		return nil
	})
	if err != nil {
		return nil, err
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}
