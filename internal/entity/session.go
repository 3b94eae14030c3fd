package entity

// Messenger is the write side of one client connection. Implemented by the
// transport; safe for concurrent use.
type Messenger interface {
	SendLine(line string) error
}

// Session is one connected client. Lifecycle and the queue/token bookkeeping
// are owned by the registry; the transport owns the Messenger.
type Session struct {
	ID            string
	Token         string
	Authenticated bool
	QueuePosition int
	Score         int
	Ready         bool

	Messenger Messenger
}

// SessionState is the snapshot persisted by token so a dropped connection can
// be re-attached to its prior score and queue position.
type SessionState struct {
	Token         string `json:"token"`
	QueuePosition int    `json:"queue_position"`
	Score         int    `json:"score"`
}

func (that *Session) State() *SessionState {
	return &SessionState{
		Token:         that.Token,
		QueuePosition: that.QueuePosition,
		Score:         that.Score,
	}
}
