package protocol

// DisplayKind classifies a line shown to the user.
type DisplayKind string

const (
	DisplayOutput DisplayKind = "output"
	DisplaySystem DisplayKind = "system"
	DisplayError  DisplayKind = "error"
)

// DefaultExitMessage is shown when an exit envelope carries no message.
const DefaultExitMessage = "session terminated"

// Display is one line a frame asks to be shown.
type Display struct {
	Kind DisplayKind
	Text string
}

// Action is what a session should do with a decoded frame.
type Action struct {
	Display []Display
	// Exit is set for exit envelopes: the session moves to disconnected
	// after the display lines are appended.
	Exit bool
	// Dropped is set when the frame produced nothing (unknown type, no data).
	Dropped bool
}

// Interpret applies the dispatch policy to a decoded frame.
func Interpret(f Frame) Action {
	if f.IsRaw() {
		return show(DisplayOutput, f.Raw)
	}

	switch f.Type {
	case KindOutput:
		return show(DisplayOutput, payloadText(f.Payload))
	case KindSystem:
		return show(DisplaySystem, payloadText(f.Payload))
	case KindError:
		return show(DisplayError, payloadText(f.Payload))
	case KindExit:
		msg := DefaultExitMessage
		if f.Payload != nil {
			switch p := f.Payload.(type) {
			case StructuredPayload:
				if p.HasMessage && p.Message != "" {
					msg = p.Message
				}
			case StringPayload:
				if p != "" {
					msg = string(p)
				}
			}
		}
		a := show(DisplaySystem, msg)
		a.Exit = true
		return a
	case KindPong:
		text := "pong"
		if t := payloadText(f.Payload); t != "" {
			text += ": " + t
		}
		return show(DisplaySystem, text)
	}

	// input, ping and anything unrecognized: degrade to output when there
	// is something to show.
	if f.Payload == nil {
		return Action{Dropped: true}
	}
	return show(DisplayOutput, f.Payload.Text())
}

func show(kind DisplayKind, text string) Action {
	return Action{Display: []Display{{Kind: kind, Text: text}}}
}

func payloadText(p Payload) string {
	if p == nil {
		return ""
	}
	return p.Text()
}
