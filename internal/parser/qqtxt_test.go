package parser

import (
	"testing"
	"time"

	"github.com/chatlab/chatlab/internal/event"
)

const qqFixture = "消息记录（此消息记录为文本格式，不支持重新导入）\n" +
	"\n" +
	"================================================================\n" +
	"消息分组:我的群聊\n" +
	"================================================================\n" +
	"消息对象:测试群\n" +
	"================================================================\n" +
	"\n" +
	"2023-05-01 12:30:45 张三(10001)\n" +
	"你好\n" +
	"\n" +
	"2023-05-01 12:31:02 李四<lisi@example.com>\n" +
	"[图片]\n" +
	"\n" +
	"2023-05-01 12:32:00 张三(10001)\n" +
	"第一行\n" +
	"第二行\n" +
	"\n"

func TestQQGroupExport(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	c := runParse(t, qqTXTParser(), "qq.txt", qqFixture, Options{Location: loc})
	assertStreamOrder(t, c)

	if c.meta.Name != "测试群" {
		t.Errorf("name = %q", c.meta.Name)
	}
	if c.meta.Platform != "qq" {
		t.Errorf("platform = %q", c.meta.Platform)
	}
	if c.meta.ChatType != event.ChatGroup {
		t.Errorf("chat type = %q", c.meta.ChatType)
	}

	if len(c.messages) != 3 {
		t.Fatalf("got %d messages, want 3", len(c.messages))
	}

	first := c.messages[0]
	if first.SenderPlatformID != "10001" || first.SenderName != "张三" {
		t.Errorf("first sender = %q/%q", first.SenderName, first.SenderPlatformID)
	}
	if first.Content != "你好" || first.Kind != event.KindText {
		t.Errorf("first message = %+v", first)
	}
	want := time.Date(2023, 5, 1, 12, 30, 45, 0, loc).Unix()
	if first.Timestamp != want {
		t.Errorf("ts = %d, want %d", first.Timestamp, want)
	}

	second := c.messages[1]
	if second.SenderPlatformID != "lisi@example.com" {
		t.Errorf("second sender id = %q", second.SenderPlatformID)
	}
	if second.Kind != event.KindImage {
		t.Errorf("second kind = %q", second.Kind)
	}

	third := c.messages[2]
	if third.Content != "第一行\n第二行" {
		t.Errorf("multi-line content = %q", third.Content)
	}

	if c.done.MemberCount != 2 {
		t.Errorf("member count = %d, want 2", c.done.MemberCount)
	}
}

func TestQQPrivateGrouping(t *testing.T) {
	input := "消息记录\n" +
		"================================================================\n" +
		"消息分组:我的好友\n" +
		"================================================================\n" +
		"消息对象:张三\n" +
		"================================================================\n" +
		"\n" +
		"2023-05-01 12:30:45 张三(10001)\n" +
		"hi\n" +
		"\n"
	c := runParse(t, qqTXTParser(), "qq.txt", input, Options{Location: time.UTC})
	if c.meta.ChatType != event.ChatPrivate || c.meta.ChatTypeInferred {
		t.Errorf("chat type = %q inferred=%v, want explicit private", c.meta.ChatType, c.meta.ChatTypeInferred)
	}
}

func TestQQSystemSender(t *testing.T) {
	input := "消息记录\n" +
		"消息对象:测试群\n" +
		"\n" +
		"2023-05-01 12:30:45 系统消息(10000)\n" +
		"张三加入本群。\n" +
		"\n"
	c := runParse(t, qqTXTParser(), "qq.txt", input, Options{Location: time.UTC})
	if len(c.messages) != 1 {
		t.Fatalf("got %d messages", len(c.messages))
	}
	if c.messages[0].Kind != event.KindSystem {
		t.Errorf("kind = %q, want system", c.messages[0].Kind)
	}
}

func TestExportToolTXT(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	input := "2023-05-01 12:30:45 张三\n" +
		"你好\n" +
		"\n" +
		"2023-05-01 12:31:00 李四\n" +
		"张三撤回了一条消息\n" +
		"\n"
	c := runParse(t, exportToolTXTParser(), "wx.txt", input, Options{Location: loc})
	assertStreamOrder(t, c)

	if len(c.messages) != 2 {
		t.Fatalf("got %d messages", len(c.messages))
	}
	if c.messages[0].SenderPlatformID != "张三" || c.messages[0].Content != "你好" {
		t.Errorf("first = %+v", c.messages[0])
	}
	if c.messages[1].Kind != event.KindSystem {
		t.Errorf("recall notice kind = %q, want system", c.messages[1].Kind)
	}
	if !c.meta.ChatTypeInferred {
		t.Error("export tool format has no chat-type header; must be marked inferred")
	}
}
