package memory

// ConversationTurn is one durably recorded exchange. Turns are created
// exactly once by AddTurn and never mutated or deleted by this subsystem.
type ConversationTurn struct {
	// ID is the public identifier. The sqlite rowid backing the vector
	// index never leaves this package.
	ID                string
	Author            string
	UserInput         string
	AssistantResponse string
	// TimestampUS is microseconds since the epoch, assigned at write time.
	// Non-decreasing in insertion order; ties break by insertion order.
	TimestampUS int64
}

// FormatForContext renders the turn the way it appears in assembled context.
// This is also, exactly, the string the passage embedding is computed over.
func (t ConversationTurn) FormatForContext() string {
	return formatExchange(t.Author, t.UserInput, t.AssistantResponse)
}

// ImportantEntry is a persistent user-authored fact outside the
// turn-by-turn log. Created by an explicit remember action, deleted by id,
// never edited in place.
type ImportantEntry struct {
	ID          string
	Content     string
	TimestampUS int64
}
