package parser

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// ChatLab native JSON export: a single object whose meta fields precede the
// "members" and "messages" arrays. Parsed with an incremental json.Decoder
// so memory stays bounded by batch size regardless of file size.
func chatlabJSONParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "chatlab_json",
			Name:       "ChatLab JSON",
			Platform:   "chatlab",
			Priority:   0,
			Extensions: []string{".json"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`"chatlabVersion"`),
			},
		},
		Parse: parseChatLabJSON,
	}
}

// ChatLab JSONL export: one JSON object per line, tagged by a "type" field
// ("meta", "member", "message") in stream order.
func chatlabJSONLParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "chatlab_jsonl",
			Name:       "ChatLab JSONL",
			Platform:   "chatlab",
			Priority:   0,
			Extensions: []string{".jsonl", ".ndjson"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`^\s*\{"type":\s*"meta"`),
			},
		},
		Parse: parseChatLabJSONL,
	}
}

// jsonMember is the wire shape of a member record in native exports.
type jsonMember struct {
	PlatformID    string   `json:"platformId"`
	AccountName   string   `json:"accountName"`
	GroupNickname string   `json:"groupNickname"`
	Aliases       []string `json:"aliases"`
	Roles         []string `json:"roles"`
	Avatar        string   `json:"avatar"`
}

// jsonMessage is the wire shape of a message record in native exports.
type jsonMessage struct {
	ID       string            `json:"id"`
	SenderID string            `json:"senderId"`
	Sender   string            `json:"sender"`
	TS       int64             `json:"ts"`
	Kind     string            `json:"kind"`
	Content  string            `json:"content"`
	ReplyTo  string            `json:"replyTo"`
	Extra    map[string]string `json:"extra"`
}

func (jm jsonMember) toEvent() event.Member {
	return event.Member{
		PlatformID:    jm.PlatformID,
		AccountName:   jm.AccountName,
		GroupNickname: jm.GroupNickname,
		Aliases:       jm.Aliases,
		Roles:         jm.Roles,
		AvatarRef:     jm.Avatar,
	}
}

func (jm jsonMessage) toEvent() event.Message {
	kind := event.MessageKind(jm.Kind)
	if jm.Kind == "" {
		kind = event.KindText
	}
	return event.Message{
		PlatformMessageID: jm.ID,
		SenderPlatformID:  jm.SenderID,
		SenderName:        jm.Sender,
		Timestamp:         jm.TS,
		Kind:              kind,
		Content:           jm.Content,
		ReplyToPlatformID: jm.ReplyTo,
		Extra:             jm.Extra,
	}
}

func parseChatLabJSON(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return clerr.Wrap(clerr.KindIO, "open file", err)
	}
	defer f.Close()

	or := &offsetReader{r: f}
	dec := json.NewDecoder(bufio.NewReader(or))

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return clerr.New(clerr.KindParseStructural, "not a JSON object export")
	}

	meta := event.Meta{Platform: "chatlab", ChatType: event.ChatGroup, ChatTypeInferred: true}
	metaSent := false
	sendMeta := func() error {
		if metaSent {
			return nil
		}
		metaSent = true
		return sink(event.MetaEvent(meta))
	}

	b := newBatcher(ctx, sink, opts.BatchSize, fileSize(path), func() int64 { return or.n })
	var memberCount int64
	membersSent := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read key", err)
		}
		key, _ := keyTok.(string)

		switch key {
		case "name":
			if err := decodeString(dec, &meta.Name); err != nil {
				return err
			}
		case "platform":
			if err := decodeString(dec, &meta.Platform); err != nil {
				return err
			}
		case "chatType":
			var ct string
			if err := decodeString(dec, &ct); err != nil {
				return err
			}
			if ct == string(event.ChatPrivate) || ct == string(event.ChatGroup) {
				meta.ChatType = event.ChatType(ct)
				meta.ChatTypeInferred = false
			}
		case "members":
			if err := sendMeta(); err != nil {
				return err
			}
			members, err := decodeMemberArray(dec)
			if err != nil {
				return err
			}
			memberCount = int64(len(members))
			membersSent = true
			if err := sink(event.MembersEvent(members)); err != nil {
				return err
			}
		case "messages":
			if err := sendMeta(); err != nil {
				return err
			}
			if !membersSent {
				membersSent = true
				if err := sink(event.MembersEvent(nil)); err != nil {
					return err
				}
			}
			if err := streamMessageArray(dec, opts, b); err != nil {
				return err
			}
		default:
			// chatlabVersion, savedAt, and future fields.
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return clerr.Wrap(clerr.KindParseStructural, "skip field", err)
			}
		}
	}

	if err := sendMeta(); err != nil {
		return err
	}
	if !membersSent {
		if err := sink(event.MembersEvent(nil)); err != nil {
			return err
		}
	}
	return b.done(memberCount)
}

func decodeString(dec *json.Decoder, dst *string) error {
	if err := dec.Decode(dst); err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "decode string field", err)
	}
	return nil
}

func decodeMemberArray(dec *json.Decoder) ([]event.Member, error) {
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return nil, clerr.New(clerr.KindParseStructural, "members is not an array")
	}
	var out []event.Member
	for dec.More() {
		var jm jsonMember
		if err := dec.Decode(&jm); err != nil {
			return nil, clerr.Wrap(clerr.KindParseStructural, "decode member", err)
		}
		out = append(out, jm.toEvent())
	}
	if _, err := dec.Token(); err != nil {
		return nil, clerr.Wrap(clerr.KindParseStructural, "close members array", err)
	}
	return out, nil
}

func streamMessageArray(dec *json.Decoder, opts Options, b *batcher) error {
	if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
		return clerr.New(clerr.KindParseStructural, "messages is not an array")
	}
	record := 0
	for dec.More() {
		record++
		var jm jsonMessage
		if err := dec.Decode(&jm); err != nil {
			// A single bad element poisons the decoder stream; at this
			// level the file is structurally broken, not record-broken.
			return clerr.Wrap(clerr.KindParseStructural, fmt.Sprintf("decode message %d", record), err)
		}
		if jm.SenderID == "" && jm.Sender != "" {
			jm.SenderID = jm.Sender
		}
		if err := b.add(jm.toEvent()); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "close messages array", err)
	}
	return nil
}

func parseChatLabJSONL(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	lr, err := openLines(path)
	if err != nil {
		return err
	}
	defer lr.Close()

	// First line must be the meta record.
	first, err := lr.Next()
	if err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "read meta line", err)
	}
	var metaLine struct {
		Type     string `json:"type"`
		Name     string `json:"name"`
		Platform string `json:"platform"`
		ChatType string `json:"chatType"`
	}
	if err := json.Unmarshal([]byte(first), &metaLine); err != nil || metaLine.Type != "meta" {
		return clerr.New(clerr.KindParseStructural, "first JSONL record is not meta")
	}
	meta := event.Meta{
		Name:             metaLine.Name,
		Platform:         metaLine.Platform,
		ChatType:         event.ChatGroup,
		ChatTypeInferred: true,
	}
	if meta.Platform == "" {
		meta.Platform = "chatlab"
	}
	if metaLine.ChatType == string(event.ChatPrivate) || metaLine.ChatType == string(event.ChatGroup) {
		meta.ChatType = event.ChatType(metaLine.ChatType)
		meta.ChatTypeInferred = false
	}
	if err := sink(event.MetaEvent(meta)); err != nil {
		return err
	}

	b := newBatcher(ctx, sink, opts.BatchSize, fileSize(path), lr.Offset)
	var members []event.Member
	membersSent := false
	sendMembers := func() error {
		if membersSent {
			return nil
		}
		membersSent = true
		return sink(event.MembersEvent(members))
	}

	for {
		line, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read line", err)
		}
		if line == "" {
			continue
		}

		var tagged struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(line), &tagged); err != nil {
			opts.recordError(lr.Line(), err)
			continue
		}

		switch tagged.Type {
		case "member":
			var jm jsonMember
			if err := json.Unmarshal([]byte(line), &jm); err != nil {
				opts.recordError(lr.Line(), err)
				continue
			}
			members = append(members, jm.toEvent())
		case "message":
			if err := sendMembers(); err != nil {
				return err
			}
			var jm jsonMessage
			if err := json.Unmarshal([]byte(line), &jm); err != nil {
				opts.recordError(lr.Line(), err)
				continue
			}
			if jm.SenderID == "" && jm.Sender != "" {
				jm.SenderID = jm.Sender
			}
			if err := b.add(jm.toEvent()); err != nil {
				return err
			}
		default:
			opts.recordError(lr.Line(), fmt.Errorf("unknown record type %q", tagged.Type))
		}
	}

	if err := sendMembers(); err != nil {
		return err
	}
	return b.done(int64(len(members)))
}
