package chat

import (
	"PPChat/logger"
	chatmodel "PPChat/module/chat/model"
	"PPChat/tools/decode"
	"PPChat/tools/errs"
	"encoding/json"

	"go.uber.org/zap"
)

// 事件名
const (
	EventNewMessage          = "new_message"
	EventChangeMessageStatus = "change_message_status"
	EventNotification        = "notification"
	EventError               = "error"

	// 旧客户端事件名
	legacyEventNewMessage   = "new_msg"
	legacyEventChangeStatus = "change_msg_status"
)

// 关闭码
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001 // 服务关闭
	CloseAuthFailed      = 1007
	CloseRoomDeactivated = 4000 // 房间被停用，强制关闭
	CloseReplaced        = 4001 // 同一用户新连接顶替
	CloseForbidden       = 4003
	CloseRoomNotFound    = 4004
	CloseDeliveryFailure = 4008 // 发送队列满
	CloseRoomInactive    = 4009
)

// SenderUser 客户端携带的发送者快照，原样回传
type SenderUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Frame 入站帧：*NewMessageFrame | *StatusUpdateFrame
type Frame interface {
	Event() string
	Sender() *SenderUser
}

type NewMessageFrame struct {
	RoomID      string
	SenderUser  *SenderUser
	MessageText string
	MessageType string
	FileLinks   []string
}

func (f *NewMessageFrame) Event() string       { return EventNewMessage }
func (f *NewMessageFrame) Sender() *SenderUser { return f.SenderUser }

type StatusUpdateFrame struct {
	MessageIDs []string
	Status     chatmodel.MessageStatus
	SenderUser *SenderUser
}

func (f *StatusUpdateFrame) Event() string       { return EventChangeMessageStatus }
func (f *StatusUpdateFrame) Sender() *SenderUser { return f.SenderUser }

type newMessagePayload struct {
	RoomID      string   `json:"room_id"`
	MessageText string   `json:"message_text"`
	MessageType string   `json:"message_type"`
	FileLinks   []string `json:"file_links"`
}

type statusPayload struct {
	MessageIDList []string `json:"message_id_list"`
	Status        string   `json:"status"`
}

// ParseFrame 唯一的入站解析入口，失败统一返回 ProtocolError
func ParseFrame(raw []byte) (Frame, error) {
	m, err := decode.JSONObject(raw)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("malformed json", "err", err)
	}
	event, err := decode.ReadString(m, "event")
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("missing event")
	}
	sender, _, err := decode.Field[SenderUser](m, "sender_user")
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("invalid sender_user", "err", err)
	}

	switch event {
	case EventNewMessage, legacyEventNewMessage:
		return parseNewMessage(m, sender)
	case EventChangeMessageStatus, legacyEventChangeStatus:
		return parseStatusUpdate(m, sender)
	default:
		return nil, errs.ErrProtocol.WrapMsg("unknown event", "event", event)
	}
}

func parseNewMessage(m map[string]any, sender *SenderUser) (Frame, error) {
	p, err := decode.Map[newMessagePayload](m)
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("invalid new_message", "err", err)
	}
	// data 内的字段优先
	if data, ok, err := decode.Field[newMessagePayload](m, "data"); err != nil {
		return nil, errs.ErrProtocol.WrapMsg("invalid new_message data", "err", err)
	} else if ok {
		if data.MessageText != "" {
			p.MessageText = data.MessageText
		}
		if data.MessageType != "" {
			p.MessageType = data.MessageType
		}
		if len(data.FileLinks) > 0 {
			p.FileLinks = data.FileLinks
		}
		if data.RoomID != "" && p.RoomID == "" {
			p.RoomID = data.RoomID
		}
	}
	if p.MessageText == "" && len(p.FileLinks) == 0 {
		return nil, errs.ErrProtocol.WrapMsg("empty message")
	}
	return &NewMessageFrame{
		RoomID:      p.RoomID,
		SenderUser:  sender,
		MessageText: p.MessageText,
		MessageType: p.MessageType,
		FileLinks:   p.FileLinks,
	}, nil
}

func parseStatusUpdate(m map[string]any, sender *SenderUser) (Frame, error) {
	p, ok, err := decode.Field[statusPayload](m, "data")
	if err != nil {
		return nil, errs.ErrProtocol.WrapMsg("invalid change_message_status data", "err", err)
	}
	if !ok {
		return nil, errs.ErrProtocol.WrapMsg("missing data")
	}
	st, err := chatmodel.ParseMessageStatus(p.Status)
	if err != nil {
		return nil, err
	}
	return &StatusUpdateFrame{
		MessageIDs: p.MessageIDList,
		Status:     st,
		SenderUser: sender,
	}, nil
}

// ---- 出站帧 ----

type outboundFrame struct {
	Event      string      `json:"event"`
	Data       any         `json:"data"`
	SenderUser *SenderUser `json:"sender_user,omitempty"`
}

type errorData struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

// BuildMessagesFrame {event, data:[message...], sender_user}
func BuildMessagesFrame(event string, msgs []*chatmodel.Message, sender *SenderUser) []byte {
	if msgs == nil {
		msgs = []*chatmodel.Message{}
	}
	return marshalFrame(outboundFrame{Event: event, Data: msgs, SenderUser: sender})
}

// BuildNotificationFrame 通知内容来自外部通知服务，原样透传
func BuildNotificationFrame(notification json.RawMessage, sender *SenderUser) []byte {
	return marshalFrame(outboundFrame{
		Event:      EventNotification,
		Data:       []json.RawMessage{notification},
		SenderUser: sender,
	})
}

// BuildErrorFrame 非 CodeError 统一按 ServerInternalError 返回
func BuildErrorFrame(err error) []byte {
	ce, ok := errs.AsCode(err)
	if !ok {
		ce = &errs.CodeError{Code: errs.ServerInternalError, Msg: errs.ErrInternalServer.Msg}
	}
	return marshalFrame(outboundFrame{
		Event: EventError,
		Data:  errorData{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail},
	})
}

func marshalFrame(f outboundFrame) []byte {
	b, err := json.Marshal(f)
	if err != nil {
		logger.Error("[Frame] marshal failed", zap.String("event", f.Event), zap.Error(err))
		return []byte(`{"event":"error","data":{"code":500,"msg":"ServerInternalError"}}`)
	}
	return b
}
