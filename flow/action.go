package flow

// ActionKind names the user intents delivered by the bot transport.
type ActionKind int

const (
	Start ActionKind = iota
	Claim
	Replace
	RequestPhone
	TextInput
)

func (k ActionKind) String() string {
	switch k {
	case Start:
		return "start"
	case Claim:
		return "claim"
	case Replace:
		return "replace"
	case RequestPhone:
		return "request_phone"
	case TextInput:
		return "text_input"
	}
	return "unknown"
}

// Action is one inbound user event.
type Action struct {
	UserID int64
	Kind   ActionKind
	// Text carries the raw message body for TextInput actions.
	Text string
}

// Button is a transport-agnostic inline button descriptor. Key is the
// callback identifier the transport maps back to an Action.
type Button struct {
	Text string
	Key  string
}

// Response is what the transport renders back to the acting user.
type Response struct {
	UserID  int64
	Text    string
	Buttons []Button
}

// Callback keys understood by the transport layer.
const (
	KeyGetGift    = "get_gift"
	KeyReplace    = "replace_gift"
	KeyEnterPhone = "enter_phone"
)
