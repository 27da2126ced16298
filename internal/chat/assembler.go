package chat

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
)

// AssembledMessage is the finalized output of one assistant turn: ordered
// content blocks plus the terminal finish reason.
type AssembledMessage struct {
	MessageID    uuid.UUID
	Blocks       []domain.ContentBlock
	FinishReason domain.FinishReason
	ErrorText    string
}

// assemblerState is the per-turn reducer state: an in-progress builder per
// sub-part id plus the finalized block list in completion order.
type assemblerState struct {
	messageID uuid.UUID
	open      map[string]*domain.ContentBlock
	openOrder []string
	blocks    []domain.ContentBlock
	finish    domain.FinishReason
	errText   string
	violated  bool
	dead      map[string]bool
	ended     bool
}

func newAssemblerState() *assemblerState {
	return &assemblerState{
		open:   map[string]*domain.ContentBlock{},
		blocks: []domain.ContentBlock{},
		dead:   map[string]bool{},
	}
}

// violate records a protocol violation. The turn keeps consuming so the
// stream still reaches a clean terminal state, but the offending id is
// dead from here on and the persisted finish reason becomes "error".
func (st *assemblerState) violate(id, format string, args ...interface{}) {
	st.violated = true
	if st.errText == "" {
		st.errText = fmt.Sprintf(format, args...)
	}
	if id != "" {
		st.dead[id] = true
		// A poisoned id that was still open keeps its partial content.
		if b := st.remove(id); b != nil {
			st.blocks = append(st.blocks, *b)
		}
	}
}

// remove detaches the open builder at id, if any.
func (st *assemblerState) remove(id string) *domain.ContentBlock {
	b, ok := st.open[id]
	if !ok {
		return nil
	}
	delete(st.open, id)
	for i, openID := range st.openOrder {
		if openID == id {
			st.openOrder = append(st.openOrder[:i], st.openOrder[i+1:]...)
			break
		}
	}
	return b
}

func (st *assemblerState) openBlock(id string, block domain.ContentBlock) {
	if st.dead[id] {
		return
	}
	if _, exists := st.open[id]; exists {
		st.violate(id, "sub-part %q started twice", id)
		return
	}
	for _, b := range st.blocks {
		if b.ID == id {
			st.violate(id, "sub-part %q restarted after finalize", id)
			return
		}
	}
	st.open[id] = &block
	st.openOrder = append(st.openOrder, id)
}

func (st *assemblerState) builderFor(id string) *domain.ContentBlock {
	if st.dead[id] {
		return nil
	}
	b, ok := st.open[id]
	if !ok {
		st.violate(id, "event for unknown or finalized sub-part %q", id)
		return nil
	}
	return b
}

// finalize moves the builder at id to the finalized list; finalized order
// is completion order across interleaved sub-streams, not start order.
func (st *assemblerState) finalize(id string) {
	if st.builderFor(id) == nil {
		return
	}
	if b := st.remove(id); b != nil {
		st.blocks = append(st.blocks, *b)
	}
}

// apply is the pure state transition (state, part) -> state. It returns
// false for parts that were rejected as protocol violations.
func (st *assemblerState) apply(part MessagePart) bool {
	switch part.Type {
	case PartMessageStart:
		st.messageID = part.MessageID
		return true

	case PartTextStart:
		st.openBlock(part.ID, domain.ContentBlock{Type: domain.BlockText, ID: part.ID})
		return !st.dead[part.ID]

	case PartTextDelta:
		b := st.builderFor(part.ID)
		if b == nil {
			return false
		}
		b.Text += part.Delta
		return true

	case PartTextEnd:
		before := len(st.blocks)
		st.finalize(part.ID)
		return len(st.blocks) > before

	case PartToolCallStart:
		st.openBlock(part.ID, domain.ContentBlock{
			Type: domain.BlockToolCall,
			ID:   part.ID,
			Name: string(part.Name),
		})
		return !st.dead[part.ID]

	case PartToolCallDelta:
		// Raw argument deltas are live-echo only; the final input comes
		// from the subsequent tool-call event.
		return st.builderFor(part.ID) != nil

	case PartToolCall:
		b := st.builderFor(part.ID)
		if b == nil {
			return false
		}
		b.Input = part.Input
		return true

	case PartToolCallResult:
		b := st.builderFor(part.ID)
		if b == nil {
			return false
		}
		if len(part.Input) > 0 {
			b.Input = part.Input
		}
		b.Output = part.Output
		return true

	case PartToolCallEnd:
		before := len(st.blocks)
		st.finalize(part.ID)
		return len(st.blocks) > before

	case PartMessageEnd:
		st.ended = true
		st.finish = part.FinishReason
		if part.FinishReason == domain.FinishError && st.errText == "" {
			st.errText = part.Error
		}
		return true

	default:
		st.violate(part.ID, "unknown part type %q", part.Type)
		return false
	}
}

// closeOpen synthesizes *-end transitions for every still-open builder, in
// open order, finalizing whatever content accumulated so far. Synthesized
// parts are forwarded so subscribers see well-formed sub-streams.
func (st *assemblerState) closeOpen(onEvent func(MessagePart)) {
	for len(st.openOrder) > 0 {
		id := st.openOrder[0]
		b := st.open[id]
		end := MessagePart{MessageID: st.messageID, ID: id}
		if b.Type == domain.BlockToolCall {
			end.Type = PartToolCallEnd
			end.Name = domain.ToolName(b.Name)
		} else {
			end.Type = PartTextEnd
		}
		st.finalize(id)
		if onEvent != nil {
			onEvent(end)
		}
	}
}

func (st *assemblerState) result() *AssembledMessage {
	finish := st.finish
	if st.violated {
		finish = domain.FinishError
	}
	if finish == "" {
		finish = domain.FinishUnknown
	}
	return &AssembledMessage{
		MessageID:    st.messageID,
		Blocks:       st.blocks,
		FinishReason: finish,
		ErrorText:    st.errText,
	}
}

type Assembler struct {
	log *logger.Logger
}

func NewAssembler(log *logger.Logger) *Assembler {
	return &Assembler{log: log.With("component", "Assembler")}
}

// Assemble drains parts until the terminal message-end (or abort),
// forwarding each applied part to onEvent, and returns the finalized
// assistant message. The abort flag is observed between events only; a
// fired flag finalizes within one processing step.
func (a *Assembler) Assemble(flag *AbortFlag, parts <-chan MessagePart, onEvent func(MessagePart)) *AssembledMessage {
	st := newAssemblerState()

	for {
		select {
		case <-flag.Done():
			return a.interrupt(st, onEvent)
		case part, ok := <-parts:
			if !ok {
				// Producer went away without a terminal event.
				st.violate("", "stream ended before message-end")
				st.closeOpen(onEvent)
				a.emitEnd(st, onEvent)
				return st.result()
			}
			if flag.Aborted() {
				return a.interrupt(st, onEvent)
			}
			applied := st.apply(part)
			if !applied {
				a.log.Warn("dropped out-of-order part",
					"part_type", part.Type,
					"sub_part_id", part.ID,
					"message_id", st.messageID,
				)
				continue
			}
			if part.Type == PartMessageEnd {
				if len(st.open) > 0 {
					st.violate("", "message-end with %d open sub-parts", len(st.open))
					st.closeOpen(onEvent)
				}
				if st.violated {
					// Absorb the violation into the persisted finish
					// reason; the forwarded terminal event reflects it too.
					part.FinishReason = domain.FinishError
					part.Error = st.errText
				}
				if onEvent != nil {
					onEvent(part)
				}
				return st.result()
			}
			if onEvent != nil {
				onEvent(part)
			}
		}
	}
}

// interrupt closes out an aborted turn: open builders are finalized with
// their partial content, the terminal event is synthesized, and the
// partial message is returned for persistence.
func (a *Assembler) interrupt(st *assemblerState, onEvent func(MessagePart)) *AssembledMessage {
	st.closeOpen(onEvent)
	st.ended = true
	st.finish = domain.FinishInterrupted
	st.violated = false
	end := MessagePart{
		Type:         PartMessageEnd,
		MessageID:    st.messageID,
		FinishReason: domain.FinishInterrupted,
	}
	if onEvent != nil {
		onEvent(end)
	}
	a.log.Debug("turn interrupted", "message_id", st.messageID, "blocks", len(st.blocks))
	return st.result()
}

func (a *Assembler) emitEnd(st *assemblerState, onEvent func(MessagePart)) {
	st.ended = true
	st.finish = domain.FinishError
	if onEvent != nil {
		onEvent(MessagePart{
			Type:         PartMessageEnd,
			MessageID:    st.messageID,
			FinishReason: domain.FinishError,
			Error:        st.errText,
		})
	}
}
