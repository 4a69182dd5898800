package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// WeChat database JSON export: an array of message rows dumped from the
// MM.sqlite message table by various backup tools. Keys follow the DB
// column names; createTime is epoch seconds, or a zone-less wall-clock
// string in older dumps, which is interpreted in the corpus timezone the
// same way the desktop client would have written it.
func wechatJSONParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "wechat_json",
			Name:       "WeChat JSON export",
			Platform:   "wechat",
			Priority:   10,
			Extensions: []string{".json"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`"talker"`),
				regexp.MustCompile(`"createTime"`),
			},
		},
		Parse: parseWeChatJSON,
	}
}

// wcRow is one element of a WeChat JSON dump.
type wcRow struct {
	MsgID      int64           `json:"msgId"`
	MsgSvrID   string          `json:"msgSvrId"`
	Type       int             `json:"type"`
	IsSend     int             `json:"isSend"`
	CreateTime json.RawMessage `json:"createTime"`
	Talker     string          `json:"talker"`
	Content    string          `json:"content"`
	NickName   string          `json:"nickName"`
}

func parseWeChatJSON(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return clerr.Wrap(clerr.KindIO, "open file", err)
	}
	defer f.Close()

	or := &offsetReader{r: f}
	dec := json.NewDecoder(bufio.NewReader(or))

	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return clerr.New(clerr.KindParseStructural, "not a JSON array export")
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta := event.Meta{
		Name:             name,
		Platform:         "wechat",
		ChatType:         event.ChatGroup,
		ChatTypeInferred: true,
	}
	if err := sink(event.MetaEvent(meta)); err != nil {
		return err
	}
	if err := sink(event.MembersEvent(nil)); err != nil {
		return err
	}

	b := newBatcher(ctx, sink, opts.BatchSize, fileSize(path), func() int64 { return or.n })
	senders := make(map[string]struct{})

	record := 0
	for dec.More() {
		record++
		var row wcRow
		if err := dec.Decode(&row); err != nil {
			return clerr.Wrap(clerr.KindParseStructural, fmt.Sprintf("decode row %d", record), err)
		}

		ts, err := wechatTimestamp(row.CreateTime, opts.Location)
		if err != nil {
			opts.recordError(record, err)
			continue
		}

		senderID := row.Talker
		senderName := row.NickName
		if row.IsSend == 1 {
			// Outgoing rows keep the peer in talker; the owner has no wxid
			// in the dump. A stable pseudo-id keeps their identity intact.
			senderID = "self"
			senderName = ""
		}
		if senderName == "" {
			senderName = senderID
		}

		// Group dumps prefix content with "wxid:\n" for the in-group sender.
		content := row.Content
		if idx := strings.Index(content, ":\n"); idx > 0 && row.IsSend != 1 {
			prefix := content[:idx]
			if strings.HasPrefix(prefix, "wxid_") || !strings.ContainsAny(prefix, " \t") {
				senderID = prefix
				content = content[idx+2:]
			}
		}

		kind := wechatKind(row.Type)
		platformMsgID := row.MsgSvrID
		if platformMsgID == "" && row.MsgID != 0 {
			platformMsgID = fmt.Sprintf("%d", row.MsgID)
		}

		senders[senderID] = struct{}{}
		if err := b.add(event.Message{
			PlatformMessageID: platformMsgID,
			SenderPlatformID:  senderID,
			SenderName:        senderName,
			Timestamp:         ts,
			Kind:              kind,
			Content:           content,
		}); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "close array", err)
	}

	return b.done(int64(len(senders)))
}

// wechatTimestamp accepts either epoch seconds (number) or a zone-less
// "2006-01-02 15:04:05" string interpreted in loc.
func wechatTimestamp(raw json.RawMessage, loc *time.Location) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing createTime")
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		// Some dumps use milliseconds.
		if n > 1e12 {
			n /= 1000
		}
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unparseable createTime %s", string(raw))
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, loc)
	if err != nil {
		return 0, fmt.Errorf("unparseable createTime %q: %w", s, err)
	}
	return t.Unix(), nil
}
