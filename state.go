package asyncmaria

// OpState identifies the connector operation currently in flight on a
// Client. The spec's single-threaded cooperative model guarantees at
// most one is ever non-Idle at a time, so unlike eventloop's FastState
// this is a plain field, not an atomic: every read and write happens on
// the event-loop goroutine.
type OpState uint8

const (
	Idle OpState = iota
	Connecting
	Send
	ReadResult
	StoreResult
	NextResult
	Ping
	ChangeUser
	SelectDB
	ResetConnection
	StmtPrepare
	StmtExecute
	StmtStore
	StmtClose
	StmtReset
)

func (s OpState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Connecting:
		return "Connecting"
	case Send:
		return "Send"
	case ReadResult:
		return "ReadResult"
	case StoreResult:
		return "StoreResult"
	case NextResult:
		return "NextResult"
	case Ping:
		return "Ping"
	case ChangeUser:
		return "ChangeUser"
	case SelectDB:
		return "SelectDB"
	case ResetConnection:
		return "ResetConnection"
	case StmtPrepare:
		return "StmtPrepare"
	case StmtExecute:
		return "StmtExecute"
	case StmtStore:
		return "StmtStore"
	case StmtClose:
		return "StmtClose"
	case StmtReset:
		return "StmtReset"
	default:
		return "Unknown"
	}
}

// exclusive reports whether an operation of this state requires exclusive
// use of the connection, i.e. may not be started while send_count > 0.
// Queries (Send/ReadResult/StoreResult/NextResult chain) are not
// exclusive; everything utility- or statement-scoped is.
func (s OpState) exclusive() bool {
	switch s {
	case Ping, ChangeUser, SelectDB, ResetConnection, StmtPrepare, StmtExecute, StmtClose, StmtReset:
		return true
	default:
		return false
	}
}
