package treasury

import "context"

// =============================================================================
// ENGINE - entry point composing store, directory and clock
// =============================================================================

// Engine is the treasury rules engine. Every operation exposed to the
// presentation layer is a method on Engine; callers never touch the
// records directly.
type Engine struct {
	store   TxStore
	members MemberDirectory
	clock   Clock
}

// NewEngine creates an engine. A nil clock defaults to the system clock.
func NewEngine(store TxStore, members MemberDirectory, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{store: store, members: members, clock: clock}
}

// member loads a directory record, mapping absence to NotFoundError.
func (e *Engine) member(ctx context.Context, id string) (*Member, error) {
	m, err := e.members.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &NotFoundError{Kind: "member", ID: id}
	}
	return m, nil
}
