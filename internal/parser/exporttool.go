package parser

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// Third-party WeChat/QQ export tool TXT.
//
// Several community export tools write the same plain shape: a
// "YYYY-MM-DD HH:MM:SS Nickname" header line followed by the message body on
// the next line(s), records separated by blank lines. There is no file
// banner, so the signature is the header shape itself and the descriptor
// sits at a lower priority than the native formats.
func exportToolTXTParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "export_tool_txt",
			Name:       "WeChat/QQ export tool",
			Platform:   "wechat",
			Priority:   50,
			Extensions: []string{".txt"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`(?m)^\d{4}-\d{2}-\d{2} \d{2}:\d{2}(:\d{2})? \S`),
			},
		},
		Parse: parseExportToolTXT,
	}
}

var exportToolSystemRe = regexp.MustCompile(`撤回了一条消息|加入了?群聊|退出了?群聊|修改群名为|领取了.*红包`)

func parseExportToolTXT(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	lr, err := openLines(path)
	if err != nil {
		return err
	}
	defer lr.Close()

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
		if exportToolSystemRe.MatchString(msg.Content) {
			msg.Kind = event.KindSystem
		}
		senders[msg.SenderPlatformID] = struct{}{}
		return b.add(msg)
	}

	for {
		line, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read line", err)
		}

		if y, mo, d, hh, mm, ss, rest, ok := parseDateTimePrefix(line); ok && rest != "" {
			if err := flush(); err != nil {
				return err
			}
			ts := dates.resolveDateTime(y, mo, d, hh, mm, ss)
			cur = &event.Message{
				SenderPlatformID: rest,
				SenderName:       rest,
				Timestamp:        ts,
			}
			continue
		}
		if cur != nil {
			if line == "" && len(curLines) > 0 {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			if line != "" {
				curLines = append(curLines, line)
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return b.done(int64(len(senders)))
}
