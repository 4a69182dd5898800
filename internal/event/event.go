// Package event defines the uniform event stream every parser emits.
// Regardless of source format, a parse produces exactly one Meta event, one
// Members event, zero or more Messages batches interleaved with Progress
// events, and a terminal Done or Error event.
package event

// ChatType distinguishes one-on-one conversations from group chats.
type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
)

// MessageKind is the uniform message type enum shared by all parsers. Each
// parser maps its native tokens (e.g. "[Photo]", "[写真]") onto these values.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVoice    MessageKind = "voice"
	KindVideo    MessageKind = "video"
	KindFile     MessageKind = "file"
	KindSticker  MessageKind = "sticker"
	KindLocation MessageKind = "location"
	KindLink     MessageKind = "link"
	KindSystem   MessageKind = "system"
	KindOther    MessageKind = "other"
)

// Meta describes the conversation being parsed. Emitted exactly once, first.
// ChatTypeInferred is set when the parser could not find explicit header
// wording and fell back to a guess; only then may the normalizer override
// the chat type from the distinct-sender count.
type Meta struct {
	Name             string
	Platform         string
	ChatType         ChatType
	ChatTypeInferred bool
}

// Member is a participant record from the source roster. Formats without a
// roster emit an empty Members event and members are inferred from messages.
type Member struct {
	PlatformID    string
	AccountName   string
	GroupNickname string
	Aliases       []string
	Roles         []string
	AvatarRef     string
}

// Message is one parsed chat record, still keyed by platform identifiers.
// Timestamp is UTC seconds. Extra carries opaque auxiliary payload such as a
// media path, link URL, or location string.
type Message struct {
	PlatformMessageID string
	SenderPlatformID  string
	SenderName        string
	Timestamp         int64
	Kind              MessageKind
	Content           string
	ReplyToPlatformID string
	Extra             map[string]string
}

// Phase identifies the pipeline stage a Progress event reports on.
type Phase string

const (
	PhaseSniffing Phase = "sniffing"
	PhaseParsing  Phase = "parsing"
	PhaseWriting  Phase = "writing"
	PhaseDone     Phase = "done"
)

// Progress is a rate-bounded status report.
type Progress struct {
	Phase             Phase
	BytesProcessed    int64
	TotalBytes        int64
	MessagesProcessed int64
	Note              string
}

// Done terminates a successful parse.
type Done struct {
	MessageCount int64
	MemberCount  int64
}

// Type tags an Event.
type Type int

const (
	TypeMeta Type = iota
	TypeMembers
	TypeMessages
	TypeProgress
	TypeDone
	TypeError
)

// Event is the tagged union flowing from parsers to the import coordinator.
// Exactly one of the payload fields is set, per Type.
type Event struct {
	Type     Type
	Meta     *Meta
	Members  []Member
	Messages []Message
	Progress *Progress
	Done     *Done
	Err      error
}

// Sink receives events in stream order. Returning an error stops the parse;
// parsers must propagate it unchanged so cancellation unwinds cleanly.
type Sink func(Event) error

func MetaEvent(m Meta) Event          { return Event{Type: TypeMeta, Meta: &m} }
func MembersEvent(ms []Member) Event  { return Event{Type: TypeMembers, Members: ms} }
func MessagesEvent(ms []Message) Event { return Event{Type: TypeMessages, Messages: ms} }
func ProgressEvent(p Progress) Event  { return Event{Type: TypeProgress, Progress: &p} }
func DoneEvent(d Done) Event          { return Event{Type: TypeDone, Done: &d} }
func ErrorEvent(err error) Event      { return Event{Type: TypeError, Err: err} }
