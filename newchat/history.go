package newchat

import "tripy/llm"

// history is a fixed-capacity ring of chat turns; the oldest turn is evicted
// when it is full.
type history struct {
	buf   []llm.Message
	start int
	n     int
}

func newHistory(pairs int) *history {
	return &history{buf: make([]llm.Message, max(pairs, 1)*2)}
}

func (h *history) add(role llm.Role, content string) {
	m := llm.Message{Role: role, Content: content}
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = m
		h.n++
		return
	}
	h.buf[h.start] = m
	h.start = (h.start + 1) % len(h.buf)
}

// messages returns the turns oldest first.
func (h *history) messages() []llm.Message {
	out := make([]llm.Message, h.n)
	for i := range out {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

func (h *history) len() int { return h.n }
