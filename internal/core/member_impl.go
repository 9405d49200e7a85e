package core

// memberSession implements MemberSession by pairing ids + transport.
type memberSession struct {
	id     SessionID
	client string
	conn   SignalConnection
}

func NewMemberSession(id SessionID, client string, conn SignalConnection) MemberSession {
	return &memberSession{id: id, client: client, conn: conn}
}

func (m *memberSession) ID() SessionID            { return m.id }
func (m *memberSession) Client() string           { return m.client }
func (m *memberSession) Signal() SignalConnection { return m.conn }
