package parser

import (
	"regexp"
	"strings"

	"github.com/chatlab/chatlab/internal/event"
)

// LINE export placeholders for non-text messages, across the export
// languages LINE ships (English, Japanese, Traditional Chinese, Thai).
var lineTokenKinds = map[string]event.MessageKind{
	"[Photo]":          event.KindImage,
	"[写真]":             event.KindImage,
	"[照片]":             event.KindImage,
	"[รูปภาพ]":         event.KindImage,
	"[Video]":          event.KindVideo,
	"[動画]":             event.KindVideo,
	"[影片]":             event.KindVideo,
	"[วิดีโอ]":         event.KindVideo,
	"[Voice message]":  event.KindVoice,
	"[ボイスメッセージ]":       event.KindVoice,
	"[語音訊息]":           event.KindVoice,
	"[Sticker]":        event.KindSticker,
	"[スタンプ]":           event.KindSticker,
	"[貼圖]":             event.KindSticker,
	"[สติกเกอร์]":      event.KindSticker,
	"[File]":           event.KindFile,
	"[ファイル]":           event.KindFile,
	"[檔案]":             event.KindFile,
	"[Location]":       event.KindLocation,
	"[位置情報]":           event.KindLocation,
	"[位置訊息]":           event.KindLocation,
	"[Album]":          event.KindImage,
	"[アルバム]":           event.KindImage,
	"[Contact]":        event.KindOther,
	"[連絡先]":            event.KindOther,
	"[Gift]":           event.KindOther,
	"[Link]":           event.KindLink,
}

// lineSystemRes match system notices LINE renders inline as message text:
// joins, leaves, invites, renames, and message recalls, in the four export
// languages.
var lineSystemRes = []*regexp.Regexp{
	regexp.MustCompile(`joined the group`),
	regexp.MustCompile(`left the group`),
	regexp.MustCompile(`invited .+ to the group`),
	regexp.MustCompile(`removed .+ from the group`),
	regexp.MustCompile(`changed the group('s)? (name|photo)`),
	regexp.MustCompile(`unsent a message`),
	regexp.MustCompile(`created (an? )?album`),
	regexp.MustCompile(`がグループに参加しました`),
	regexp.MustCompile(`がグループを退会しました`),
	regexp.MustCompile(`を招待しました`),
	regexp.MustCompile(`がメッセージの送信を取り消しました`),
	regexp.MustCompile(`グループ名を.+に変更しました`),
	regexp.MustCompile(`加入(了)?群組`),
	regexp.MustCompile(`退出(了)?群組`),
	regexp.MustCompile(`邀請.+加入`),
	regexp.MustCompile(`收回了訊息`),
	regexp.MustCompile(`เข้าร่วมกลุ่ม`),
	regexp.MustCompile(`ออกจากกลุ่ม`),
	regexp.MustCompile(`ยกเลิกการส่งข้อความ`),
}

// classifyLINE maps LINE message content to a uniform kind.
func classifyLINE(content string) event.MessageKind {
	trimmed := strings.TrimSpace(content)
	if kind, ok := lineTokenKinds[trimmed]; ok {
		return kind
	}
	if looksLikeURL(trimmed) {
		return event.KindLink
	}
	return event.KindText
}

// isLINESystemText reports whether a message body is a LINE system notice.
func isLINESystemText(content string) bool {
	for _, re := range lineSystemRes {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// QQ native TXT placeholders.
var qqTokenKinds = map[string]event.MessageKind{
	"[图片]":   event.KindImage,
	"[表情]":   event.KindSticker,
	"[语音]":   event.KindVoice,
	"[语音消息]": event.KindVoice,
	"[视频]":   event.KindVideo,
	"[视频通话]": event.KindOther,
	"[文件]":   event.KindFile,
	"[位置]":   event.KindLocation,
	"[红包]":   event.KindOther,
	"[转账]":   event.KindOther,
	"[链接]":   event.KindLink,
	"[闪照]":   event.KindImage,
}

var qqSystemRes = []*regexp.Regexp{
	regexp.MustCompile(`加入(了)?本群`),
	regexp.MustCompile(`退出(了)?本群`),
	regexp.MustCompile(`被移出(了)?本群`),
	regexp.MustCompile(`撤回了一条消息`),
	regexp.MustCompile(`修改了群名称`),
	regexp.MustCompile(`成为(了)?(本群)?管理员`),
	regexp.MustCompile(`发起了群公告`),
}

// classifyQQ maps QQ message content to a uniform kind.
func classifyQQ(content string) event.MessageKind {
	trimmed := strings.TrimSpace(content)
	if kind, ok := qqTokenKinds[trimmed]; ok {
		return kind
	}
	if isQQSystemText(trimmed) {
		return event.KindSystem
	}
	if looksLikeURL(trimmed) {
		return event.KindLink
	}
	return event.KindText
}

func isQQSystemText(content string) bool {
	for _, re := range qqSystemRes {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// qqSystemSender is the pseudo-sender QQ attributes system notices to.
const qqSystemSender = "10000"

// WeChat database export message type codes.
func wechatKind(msgType int) event.MessageKind {
	switch msgType {
	case 1:
		return event.KindText
	case 3:
		return event.KindImage
	case 34:
		return event.KindVoice
	case 43, 62:
		return event.KindVideo
	case 47:
		return event.KindSticker
	case 48:
		return event.KindLocation
	case 49:
		return event.KindLink
	case 42:
		return event.KindOther // contact card
	case 50:
		return event.KindOther // call
	case 10000, 10002:
		return event.KindSystem
	default:
		return event.KindOther
	}
}

var urlRe = regexp.MustCompile(`^https?://\S+$`)

func looksLikeURL(s string) bool {
	return urlRe.MatchString(s)
}
