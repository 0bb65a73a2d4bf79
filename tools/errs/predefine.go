package errs

// 错误码
const (
	ServerInternalError = 500

	AuthFailed   = 1001 // 鉴权失败（父码）
	InvalidToken = 1002
	ExpiredToken = 1003

	RoomNotFound = 1101
	RoomInactive = 1102
	Forbidden    = 1103 // 非房间成员

	ProtocolError      = 1201
	DeliveryFailure    = 1301
	PersistenceFailure = 1401
)

var (
	ErrInternalServer     = NewCodeError(ServerInternalError, "ServerInternalError")
	ErrAuthFailed         = NewCodeError(AuthFailed, "AuthFailed")
	ErrInvalidToken       = NewCodeError(InvalidToken, "InvalidToken")
	ErrTokenExpired       = NewCodeError(ExpiredToken, "ExpiredToken")
	ErrRoomNotFound       = NewCodeError(RoomNotFound, "RoomNotFound")
	ErrRoomInactive       = NewCodeError(RoomInactive, "RoomInactive")
	ErrForbidden          = NewCodeError(Forbidden, "Forbidden")
	ErrProtocol           = NewCodeError(ProtocolError, "ProtocolError")
	ErrDeliveryFailure    = NewCodeError(DeliveryFailure, "DeliveryFailure")
	ErrPersistenceFailure = NewCodeError(PersistenceFailure, "PersistenceFailure")
)

func init() {
	_ = relation.Add(AuthFailed, InvalidToken)
	_ = relation.Add(AuthFailed, ExpiredToken)
}
