package parser

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// QQ native TXT export.
//
// The file opens with a "消息记录" banner and "消息分组:"/"消息对象:" header
// rows between ruler lines, then message blocks: a
// "YYYY-MM-DD HH:MM:SS 昵称(10001)" header line (the sender id is a QQ
// number in parentheses or an email in angle brackets) followed by one or
// more content lines, terminated by a blank line or the next header.
func qqTXTParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "qq_txt",
			Name:       "QQ chat export",
			Platform:   "qq",
			Priority:   10,
			Extensions: []string{".txt"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`消息记录`),
				regexp.MustCompile(`(?m)^消息对象:`),
			},
		},
		Parse: parseQQTXT,
	}
}

var (
	qqObjectRe = regexp.MustCompile(`^消息对象:(.*)$`)
	qqGroupRe  = regexp.MustCompile(`^消息分组:(.*)$`)
	qqRulerRe  = regexp.MustCompile(`^=+$`)
	// Sender suffix: "昵称(10001)" or "昵称<someone@example.com>".
	qqSenderRe = regexp.MustCompile(`^(.*?)[(（<]([^()（）<>]+)[)）>]$`)
)

func parseQQTXT(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	lr, err := openLines(path)
	if err != nil {
		return err
	}
	defer lr.Close()

	first, err := lr.Next()
	if err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "read header", err)
	}
	if !strings.Contains(first, "消息记录") {
		return clerr.New(clerr.KindParseStructural, "missing QQ export banner")
	}

	meta := event.Meta{Platform: "qq", ChatType: event.ChatGroup, ChatTypeInferred: true}

	// Scan the preamble for 消息对象 / 消息分组 until the first message
	// header. The group name decides the chat type: QQ exports put private
	// chats under the "我的好友" grouping.
	var pending string
	for {
		line, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read preamble", err)
		}
		if qqRulerRe.MatchString(line) || line == "" {
			continue
		}
		if m := qqObjectRe.FindStringSubmatch(line); m != nil {
			meta.Name = strings.TrimSpace(m[1])
			continue
		}
		if m := qqGroupRe.FindStringSubmatch(line); m != nil {
			group := strings.TrimSpace(m[1])
			if group == "我的好友" || group == "好友" {
				meta.ChatType = event.ChatPrivate
				meta.ChatTypeInferred = false
			}
			continue
		}
		if _, _, _, _, _, _, _, ok := parseDateTimePrefix(line); ok {
			pending = line
			break
		}
	}

	if err := sink(event.MetaEvent(meta)); err != nil {
		return err
	}
	if err := sink(event.MembersEvent(nil)); err != nil {
		return err
	}

	b := newBatcher(ctx, sink, opts.BatchSize, fileSize(path), lr.Offset)
	dates := newDateState(opts.Location)
	senders := make(map[string]struct{})

	var cur *event.Message
	var curLines []string
	flush := func() error {
		if cur == nil {
			return nil
		}
		msg := *cur
		cur = nil
		msg.Content = strings.TrimRight(strings.Join(curLines, "\n"), "\n")
		curLines = nil
		msg.Kind = classifyQQ(msg.Content)
		if msg.SenderPlatformID == qqSystemSender {
			msg.Kind = event.KindSystem
		}
		senders[msg.SenderPlatformID] = struct{}{}
		return b.add(msg)
	}

	handleLine := func(line string) error {
		if y, mo, d, hh, mm, ss, rest, ok := parseDateTimePrefix(line); ok && rest != "" {
			if err := flush(); err != nil {
				return err
			}
			ts := dates.resolveDateTime(y, mo, d, hh, mm, ss)
			name, pid := splitQQSender(rest)
			cur = &event.Message{
				SenderPlatformID: pid,
				SenderName:       name,
				Timestamp:        ts,
			}
			return nil
		}
		if cur != nil {
			if line == "" && len(curLines) > 0 {
				return flush()
			}
			if line != "" {
				curLines = append(curLines, line)
			}
		}
		return nil
	}

	if pending != "" {
		if err := handleLine(pending); err != nil {
			return err
		}
	}
	for {
		line, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read line", err)
		}
		if err := handleLine(line); err != nil {
			return err
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return b.done(int64(len(senders)))
}

// splitQQSender separates "昵称(10001)" into display name and platform id.
// When no id suffix is present the name doubles as the id.
func splitQQSender(s string) (name, platformID string) {
	s = strings.TrimSpace(s)
	if m := qqSenderRe.FindStringSubmatch(s); m != nil {
		name = strings.TrimSpace(m[1])
		platformID = strings.TrimSpace(m[2])
		if name == "" {
			name = platformID
		}
		return name, platformID
	}
	return s, s
}
