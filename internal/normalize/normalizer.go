// Package normalize canonicalizes the parser event stream while it flows
// into the store: stable member identity, name history, reply resolution,
// timestamp discipline, and re-import deduplication.
package normalize

import (
	"crypto/sha256"
	"database/sql"
	"fmt"
	"sort"

	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/store"
)

// InversionToleranceSec is how far a batch may start before the previous
// batch's last timestamp without triggering a warning. Some exports
// interleave threads; small inversions are expected.
const InversionToleranceSec = 5

// Warning is a non-fatal normalization finding.
type Warning struct {
	Code    string
	Message string
}

// memberState is the per-platform-id identity entry held for the lifetime
// of one import. It is owned by the import worker and never shared.
type memberState struct {
	id          int64
	currentName string
	lastSeenTS  int64
	row         *store.Member // pending write for the next batch, nil when clean
	hasInterval bool          // an open name_history interval exists
}

// Normalizer tracks identity and ordering state across the batches of one
// import.
type Normalizer struct {
	st       *store.Store
	corpusID string
	reimport bool

	members      map[string]*memberState
	nextMemberID int64
	nextMsgID    int64

	// msgIndex maps platform message ids to internal ids so replies can be
	// resolved in stream order; unresolved ones are bound in a second pass.
	msgIndex map[string]int64

	lastBatchMaxTS int64
	skipped        int64
}

// New creates a normalizer for an import into corpus. On re-import the
// member identity map is seeded from the store so existing internal ids are
// reused.
func New(st *store.Store, corpus *store.Corpus, reimport bool) (*Normalizer, error) {
	n := &Normalizer{
		st:           st,
		corpusID:     corpus.ID,
		reimport:     reimport,
		members:      make(map[string]*memberState),
		nextMemberID: corpus.MemberSeq + 1,
		nextMsgID:    corpus.MessageSeq + 1,
		msgIndex:     make(map[string]int64),
	}

	if reimport {
		ids, err := st.MemberIDsByPlatformID(corpus.ID)
		if err != nil {
			return nil, fmt.Errorf("seed member identity: %w", err)
		}
		names, err := st.CurrentNames(corpus.ID)
		if err != nil {
			return nil, fmt.Errorf("seed current names: %w", err)
		}
		for pid, id := range ids {
			n.members[pid] = &memberState{
				id:          id,
				currentName: names[id],
				hasInterval: names[id] != "",
			}
		}
	}
	return n, nil
}

// Roster registers the members event. Roster members get their rows queued
// for the next batch; name intervals open lazily on first message so the
// history partition starts at first-seen.
func (n *Normalizer) Roster(members []event.Member) {
	for i := range members {
		em := &members[i]
		if em.PlatformID == "" {
			continue
		}
		st, ok := n.members[em.PlatformID]
		if !ok {
			st = &memberState{id: n.nextMemberID}
			n.nextMemberID++
			n.members[em.PlatformID] = st
		}
		st.row = &store.Member{
			CorpusID:      n.corpusID,
			ID:            st.id,
			PlatformID:    em.PlatformID,
			AccountName:   em.AccountName,
			GroupNickname: em.GroupNickname,
			Aliases:       em.Aliases,
			Roles:         em.Roles,
			AvatarRef:     em.AvatarRef,
		}
	}
}

// Batch normalizes one parser batch into a transactional store batch.
// The returned batch may be empty when every record deduplicated away.
func (n *Normalizer) Batch(msgs []event.Message) (*store.Batch, []Warning, error) {
	var warnings []Warning

	// Timestamp discipline: reorder within the batch when not monotonic.
	if !monotonic(msgs) {
		sort.SliceStable(msgs, func(i, j int) bool {
			if msgs[i].Timestamp != msgs[j].Timestamp {
				return msgs[i].Timestamp < msgs[j].Timestamp
			}
			return msgs[i].PlatformMessageID < msgs[j].PlatformMessageID
		})
	}
	if len(msgs) > 0 && n.lastBatchMaxTS > 0 &&
		msgs[0].Timestamp+InversionToleranceSec < n.lastBatchMaxTS {
		warnings = append(warnings, Warning{
			Code: "timestamp_inversion",
			Message: fmt.Sprintf("batch starts %ds before previous batch end",
				n.lastBatchMaxTS-msgs[0].Timestamp),
		})
	}

	// Re-import dedup by (ts, sender, content hash).
	var existing map[string]struct{}
	if n.reimport {
		keys := make([]string, len(msgs))
		for i := range msgs {
			keys[i] = dedupKey(&msgs[i])
		}
		var err error
		existing, err = n.st.ExistingDedupKeys(n.corpusID, keys)
		if err != nil {
			return nil, warnings, fmt.Errorf("check duplicates: %w", err)
		}
	}

	batch := &store.Batch{CorpusID: n.corpusID}
	dirty := make(map[int64]*memberState)

	for i := range msgs {
		em := &msgs[i]
		key := dedupKey(em)
		if existing != nil {
			if _, dup := existing[key]; dup {
				n.skipped++
				continue
			}
		}

		ms, nameEv := n.resolveSender(em)
		if ms.row != nil {
			dirty[ms.id] = ms
		}
		if nameEv != nil {
			batch.NameEvents = append(batch.NameEvents, *nameEv)
		}

		id := n.nextMsgID
		n.nextMsgID++

		rec := &store.Message{
			CorpusID: n.corpusID,
			ID:       id,
			SenderID: ms.id,
			TS:       em.Timestamp,
			Kind:     string(em.Kind),
			DedupKey: key,
		}
		if em.Content != "" || em.Kind == event.KindText {
			rec.Content = sql.NullString{String: em.Content, Valid: true}
		}
		if em.PlatformMessageID != "" {
			rec.PlatformMessageID = sql.NullString{String: em.PlatformMessageID, Valid: true}
			n.msgIndex[em.PlatformMessageID] = id
		}
		if em.ReplyToPlatformID != "" {
			rec.ReplyToPlatformID = sql.NullString{String: em.ReplyToPlatformID, Valid: true}
			if target, ok := n.msgIndex[em.ReplyToPlatformID]; ok {
				rec.ReplyToMessageID = sql.NullInt64{Int64: target, Valid: true}
			}
		}
		if len(em.Extra) > 0 {
			rec.Extra = sql.NullString{String: encodeExtra(em.Extra), Valid: true}
		}

		batch.Messages = append(batch.Messages, rec)
		ms.lastSeenTS = em.Timestamp
		if em.Timestamp > n.lastBatchMaxTS {
			n.lastBatchMaxTS = em.Timestamp
		}
	}

	for _, ms := range dirty {
		batch.Members = append(batch.Members, ms.row)
		ms.row = nil
	}
	sort.Slice(batch.Members, func(i, j int) bool { return batch.Members[i].ID < batch.Members[j].ID })

	batch.MessageSeq = n.nextMsgID - 1
	batch.MemberSeq = n.nextMemberID - 1
	return batch, warnings, nil
}

// resolveSender maps the message's platform identity to a member state,
// creating on first sight, and emits a name event when the display name
// changed since the member was last seen.
func (n *Normalizer) resolveSender(em *event.Message) (*memberState, *store.NameEvent) {
	pid := em.SenderPlatformID
	if pid == "" {
		pid = em.SenderName
	}
	if pid == "" {
		pid = "(unknown)"
	}

	ms, ok := n.members[pid]
	if !ok {
		ms = &memberState{id: n.nextMemberID}
		n.nextMemberID++
		n.members[pid] = ms
		ms.row = &store.Member{
			CorpusID:    n.corpusID,
			ID:          ms.id,
			PlatformID:  pid,
			AccountName: em.SenderName,
		}
	}

	name := em.SenderName
	if name == "" {
		name = pid
	}

	if !ms.hasInterval {
		ms.hasInterval = true
		ms.currentName = name
		return ms, &store.NameEvent{MemberID: ms.id, Name: name, StartTS: em.Timestamp}
	}
	if name != ms.currentName {
		closeAt := ms.lastSeenTS
		if closeAt == 0 {
			closeAt = em.Timestamp
		}
		ms.currentName = name
		if ms.row == nil {
			// Refresh the stored account name alongside the history.
			ms.row = &store.Member{
				CorpusID:    n.corpusID,
				ID:          ms.id,
				PlatformID:  pid,
				AccountName: em.SenderName,
			}
		}
		return ms, &store.NameEvent{
			MemberID:  ms.id,
			Name:      name,
			StartTS:   em.Timestamp,
			ClosePrev: true,
			CloseTS:   closeAt,
		}
	}
	return ms, nil
}

// Finish runs the end-of-import pass: bind replies that arrived before
// their targets, and settle the chat type when the parser's determination
// was a fallback guess.
func (n *Normalizer) Finish(meta event.Meta) (chatType event.ChatType, bound int64, err error) {
	bound, err = n.st.BindPendingReplies(n.corpusID)
	if err != nil {
		return "", 0, err
	}

	chatType = meta.ChatType
	if meta.ChatTypeInferred {
		if len(n.members) <= 2 {
			chatType = event.ChatPrivate
		} else {
			chatType = event.ChatGroup
		}
	}
	return chatType, bound, nil
}

// Skipped reports how many records deduplicated away.
func (n *Normalizer) Skipped() int64 {
	return n.skipped
}

// MemberCount reports how many distinct members the import has seen.
func (n *Normalizer) MemberCount() int64 {
	return int64(len(n.members))
}

func monotonic(msgs []event.Message) bool {
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			return false
		}
	}
	return true
}

// dedupKey identifies a message for re-import deduplication by timestamp,
// sender, and a content hash.
func dedupKey(em *event.Message) string {
	h := sha256.Sum256([]byte(em.Content))
	return fmt.Sprintf("%d|%s|%x", em.Timestamp, em.SenderPlatformID, h[:8])
}

func encodeExtra(extra map[string]string) string {
	// Deterministic key order keeps dedup and tests stable.
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q:%q", k, extra[k])
	}
	return out + "}"
}
