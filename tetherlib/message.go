package tetherlib

// Kind identifies a message type on the wire.
type Kind = uint8

// KindAcknowledgement is reserved for the zero-payload receipt marker.
// Application messages must use a nonzero kind.
const KindAcknowledgement Kind = 0x00

type Message interface {
	Kind() Kind
}

// Acknowledgement confirms receipt of an earlier message. It carries no
// payload: correlation is strictly by arrival order.
type Acknowledgement struct{}

func (Acknowledgement) Kind() Kind { return KindAcknowledgement }
