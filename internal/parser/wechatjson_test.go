package parser

import (
	"testing"
	"time"

	"github.com/chatlab/chatlab/internal/event"
)

const wechatFixture = `[
  {"msgId": 1, "type": 1, "isSend": 0, "createTime": 1620000000, "talker": "wxid_abc", "content": "你好", "nickName": "张三"},
  {"msgId": 2, "type": 1, "isSend": 1, "createTime": 1620000060, "talker": "wxid_abc", "content": "hi"},
  {"msgId": 3, "type": 3, "isSend": 0, "createTime": 1620000120, "talker": "wxid_abc", "content": "", "nickName": "张三"},
  {"msgId": 4, "type": 10000, "isSend": 0, "createTime": 1620000180, "talker": "wxid_abc", "content": "你邀请了李四加入群聊"}
]`

func TestWeChatJSON(t *testing.T) {
	c := runParse(t, wechatJSONParser(), "dump.json", wechatFixture, Options{})
	assertStreamOrder(t, c)

	if c.meta.Platform != "wechat" || !c.meta.ChatTypeInferred {
		t.Errorf("meta = %+v", c.meta)
	}

	if len(c.messages) != 4 {
		t.Fatalf("got %d messages", len(c.messages))
	}
	if c.messages[0].SenderPlatformID != "wxid_abc" || c.messages[0].Timestamp != 1620000000 {
		t.Errorf("first = %+v", c.messages[0])
	}
	if c.messages[1].SenderPlatformID != "self" {
		t.Errorf("outgoing row sender = %q, want self", c.messages[1].SenderPlatformID)
	}
	if c.messages[2].Kind != event.KindImage {
		t.Errorf("type 3 kind = %q, want image", c.messages[2].Kind)
	}
	if c.messages[3].Kind != event.KindSystem {
		t.Errorf("type 10000 kind = %q, want system", c.messages[3].Kind)
	}
}

func TestWeChatWallClockTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	input := `[
	  {"msgId": 1, "type": 1, "isSend": 0, "createTime": "2021-05-03 08:00:00", "talker": "wxid_abc", "content": "早"}
	]`
	c := runParse(t, wechatJSONParser(), "dump.json", input, Options{Location: loc})

	want := time.Date(2021, 5, 3, 8, 0, 0, 0, loc).Unix()
	if len(c.messages) != 1 || c.messages[0].Timestamp != want {
		t.Errorf("ts = %d, want %d (wall clock in corpus zone)", c.messages[0].Timestamp, want)
	}
}

func TestWeChatGroupSenderPrefix(t *testing.T) {
	input := `[
	  {"msgId": 1, "type": 1, "isSend": 0, "createTime": 1620000000, "talker": "12345@chatroom", "content": "wxid_xyz:\n大家好", "nickName": ""}
	]`
	c := runParse(t, wechatJSONParser(), "dump.json", input, Options{})

	if len(c.messages) != 1 {
		t.Fatalf("got %d messages", len(c.messages))
	}
	if c.messages[0].SenderPlatformID != "wxid_xyz" {
		t.Errorf("sender = %q, want wxid_xyz", c.messages[0].SenderPlatformID)
	}
	if c.messages[0].Content != "大家好" {
		t.Errorf("content = %q", c.messages[0].Content)
	}
}

func TestWeChatMillisecondTimestamps(t *testing.T) {
	input := `[
	  {"msgId": 1, "type": 1, "isSend": 0, "createTime": 1620000000000, "talker": "wxid_abc", "content": "x"}
	]`
	c := runParse(t, wechatJSONParser(), "dump.json", input, Options{})
	if len(c.messages) != 1 || c.messages[0].Timestamp != 1620000000 {
		t.Errorf("ts = %d, want seconds", c.messages[0].Timestamp)
	}
}
