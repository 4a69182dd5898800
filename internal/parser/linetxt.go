package parser

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/chatlab/chatlab/internal/clerr"
	"github.com/chatlab/chatlab/internal/event"
	"github.com/chatlab/chatlab/internal/sniff"
)

// LINE native TXT export.
//
// The file opens with a "[LINE] Chat history in <name>" header (wording
// varies by export language), a "Saved on:" stamp, then day blocks: a
// date-only line followed by tab-separated "HH:MM<TAB>Sender<TAB>Content"
// rows. Multi-line content is wrapped in double quotes with inner quotes
// doubled. Two-field rows are system notices.
func lineTXTParser() Parser {
	return Parser{
		Descriptor: sniff.Descriptor{
			ID:         "line_txt",
			Name:       "LINE chat export",
			Platform:   "line",
			Priority:   10,
			Extensions: []string{".txt"},
			Signatures: []*regexp.Regexp{
				regexp.MustCompile(`^\[LINE\]`),
				regexp.MustCompile(`(?m)^Saved on:`),
				regexp.MustCompile(`(?m)^(保存日時|儲存日期|บันทึกเมื่อ)[:：]`),
			},
		},
		Parse: parseLINETXT,
	}
}

var (
	lineHeaderEnRe = regexp.MustCompile(`^\[LINE\] Chat history (in|with) (.+)$`)
	lineHeaderJaRe = regexp.MustCompile(`^\[LINE\] (.+)とのトーク履歴$`)
	lineHeaderZhRe = regexp.MustCompile(`^\[LINE\] 與?(.+?)的聊天記錄$`)
	lineSavedRe    = regexp.MustCompile(`^(Saved on|保存日時|儲存日期|บันทึกเมื่อ)[:：]`)
	lineTimeRe     = regexp.MustCompile(`^(?:[上下]午|午[前後])?\s*\d{1,2}:\d{2}(?::\d{2})?\s*(?:[AaPp]\.?[Mm]\.?)?$`)
)

type lineMessage struct {
	ts      int64
	sender  string
	content []string
	quoted  bool // inside a "..." continuation
	system  bool
}

func parseLINETXT(ctx context.Context, path string, opts Options, sink event.Sink) error {
	opts = opts.withDefaults()

	lr, err := openLines(path)
	if err != nil {
		return err
	}
	defer lr.Close()

	header, err := lr.Next()
	if err != nil {
		return clerr.Wrap(clerr.KindParseStructural, "read header", err)
	}

	meta := event.Meta{Platform: "line", ChatType: event.ChatGroup, ChatTypeInferred: true}
	switch {
	case lineHeaderEnRe.MatchString(header):
		m := lineHeaderEnRe.FindStringSubmatch(header)
		meta.Name = m[2]
		meta.ChatTypeInferred = false
		if m[1] == "with" {
			meta.ChatType = event.ChatPrivate
		}
	case lineHeaderJaRe.MatchString(header):
		meta.Name = lineHeaderJaRe.FindStringSubmatch(header)[1]
	case lineHeaderZhRe.MatchString(header):
		meta.Name = lineHeaderZhRe.FindStringSubmatch(header)[1]
	default:
		return clerr.New(clerr.KindParseStructural, "unrecognized LINE header %q", header)
	}

	if err := sink(event.MetaEvent(meta)); err != nil {
		return err
	}
	// LINE exports carry no roster; members are inferred from messages.
	if err := sink(event.MembersEvent(nil)); err != nil {
		return err
	}

	b := newBatcher(ctx, sink, opts.BatchSize, fileSize(path), lr.Offset)
	dates := newDateState(opts.Location)
	senders := make(map[string]struct{})

	var cur *lineMessage
	flush := func() error {
		if cur == nil {
			return nil
		}
		msg := cur
		cur = nil
		content := strings.Join(msg.content, "\n")
		kind := classifyLINE(content)
		if msg.system || isLINESystemText(content) {
			kind = event.KindSystem
		}
		out := event.Message{
			SenderPlatformID: msg.sender,
			SenderName:       msg.sender,
			Timestamp:        msg.ts,
			Kind:             kind,
			Content:          content,
		}
		if msg.sender != "" {
			senders[msg.sender] = struct{}{}
		}
		return b.add(out)
	}

	for {
		line, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return clerr.Wrap(clerr.KindParseStructural, "read line", err)
		}

		if cur != nil && cur.quoted {
			// Inside a quoted multi-line body: accumulate until the
			// closing quote ends a line.
			if strings.HasSuffix(line, `"`) && !strings.HasSuffix(line, `""`) {
				cur.content = append(cur.content, unquoteLINE(strings.TrimSuffix(line, `"`)))
				cur.quoted = false
			} else {
				cur.content = append(cur.content, unquoteLINE(line))
			}
			continue
		}

		if line == "" {
			continue
		}
		if lineSavedRe.MatchString(line) {
			continue
		}
		if y, m, d, ok := parseDateLine(line); ok {
			if err := flush(); err != nil {
				return err
			}
			dates.set(y, m, d)
			continue
		}

		fields := strings.SplitN(line, "\t", 3)
		if len(fields) >= 2 && lineTimeRe.MatchString(fields[0]) {
			hh, mm, ss, ok := parseClock(fields[0])
			if !ok {
				opts.recordError(lr.Line(), fmt.Errorf("unparseable time %q", fields[0]))
				continue
			}
			ts, ok := dates.resolve(hh, mm, ss)
			if !ok {
				opts.recordError(lr.Line(), fmt.Errorf("time stamp before any date header"))
				continue
			}
			if err := flush(); err != nil {
				return err
			}

			if len(fields) == 2 {
				cur = &lineMessage{ts: ts, system: true, content: []string{fields[1]}}
				continue
			}

			content := fields[2]
			msg := &lineMessage{ts: ts, sender: fields[1]}
			if strings.HasPrefix(content, `"`) && !(strings.HasSuffix(content, `"`) && len(content) > 1) {
				msg.quoted = true
				content = strings.TrimPrefix(content, `"`)
			} else if strings.HasPrefix(content, `"`) && strings.HasSuffix(content, `"`) && len(content) > 1 {
				content = strings.TrimSuffix(strings.TrimPrefix(content, `"`), `"`)
			}
			msg.content = []string{unquoteLINE(content)}
			cur = msg
			continue
		}

		// Unstructured line: continuation of the message being assembled.
		if cur != nil {
			cur.content = append(cur.content, line)
		}
	}

	if err := flush(); err != nil {
		return err
	}
	return b.done(int64(len(senders)))
}

// unquoteLINE collapses the doubled quotes LINE uses inside quoted bodies.
func unquoteLINE(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}
