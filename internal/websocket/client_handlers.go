package websocket

import (
	"context"

	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/wire"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

func (s *SocketIOServer) registerClientHandlers(client *socket.Socket, socketID string) {
	client.On("subscribe", func(data ...any) {
		sd := s.getSocketData(socketID)
		raw, ack := getFirstAnyWithAck(data)

		var payload wire.SubscribePayload
		if err := decodeAny(raw, &payload); err != nil || payload.ConversationID == "" {
			ackError(ack, "conversationId is required")
			return
		}

		lastSeq, err := s.dispatcher.Subscribe(context.Background(), socketID, payload.ConversationID, sd.UserID)
		if err != nil {
			logger.Warnf("[WebSocket] subscribe rejected (user %s, conversation %s): %v",
				sd.UserID, payload.ConversationID, err)
			ackError(ack, err.Error())
			return
		}
		if ack != nil {
			ack(wire.SubscribedAck{
				Result:         "success",
				ConversationID: payload.ConversationID,
				LastSeq:        lastSeq,
			})
		}
	})

	client.On("unsubscribe", func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)

		var payload wire.SubscribePayload
		if err := decodeAny(raw, &payload); err != nil || payload.ConversationID == "" {
			ackError(ack, "conversationId is required")
			return
		}

		s.dispatcher.Unsubscribe(socketID, payload.ConversationID)
		if ack != nil {
			ack(wire.ResultAck{Result: "success"})
		}
	})

	client.On("send-message", func(data ...any) {
		sd := s.getSocketData(socketID)
		raw, ack := getFirstAnyWithAck(data)

		var payload wire.SendMessagePayload
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, "invalid payload")
			return
		}

		update, err := s.dispatcher.SendMessage(context.Background(), engine.SendMessageArgs{
			ConversationID: payload.ConversationID,
			ActorID:        sd.UserID,
			Content:        payload.Content,
			ContentType:    payload.ContentType,
			ClientToken:    payload.ClientToken,
		})
		ackEvent(ack, update, err)
	})

	client.On("toggle-reaction", func(data ...any) {
		sd := s.getSocketData(socketID)
		raw, ack := getFirstAnyWithAck(data)

		var payload wire.ToggleReactionPayload
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, "invalid payload")
			return
		}

		update, err := s.dispatcher.ToggleReaction(context.Background(), engine.ToggleReactionArgs{
			ConversationID: payload.ConversationID,
			MessageID:      payload.MessageID,
			Emoji:          payload.Emoji,
			ActorID:        sd.UserID,
			ClientToken:    payload.ClientToken,
		})
		ackEvent(ack, update, err)
	})

	client.On("mark-read", func(data ...any) {
		sd := s.getSocketData(socketID)
		raw, ack := getFirstAnyWithAck(data)

		var payload wire.MarkReadPayload
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, "invalid payload")
			return
		}

		update, err := s.dispatcher.MarkRead(context.Background(), engine.MarkReadArgs{
			ConversationID: payload.ConversationID,
			ActorID:        sd.UserID,
			UpToSeq:        payload.UpToSeq,
			ClientToken:    payload.ClientToken,
		})
		ackEvent(ack, update, err)
	})

	client.On("ping", func(data ...any) {
		_, ack := getFirstAnyWithAck(data)
		if ack != nil {
			ack(wire.ResultAck{Result: "success"})
		}
	})

	client.On("disconnect", func(data ...any) {
		sd := s.getSocketData(socketID)
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("[WebSocket] user disconnected: %s (socket %s, reason: %s)",
			sd.UserID, socketID, reason)

		s.dispatcher.Unregister(socketID, sd.UserID)
		s.socketData.Delete(socketID)
	})
}

func ackError(ack func(...any), message string) {
	if ack != nil {
		ack(wire.ResultAck{Result: "error", Message: message})
	}
}

// ackEvent acknowledges a mutating operation with the same update payload
// that was broadcast to the conversation's subscribers.
func ackEvent(ack func(...any), update *wire.Update, err error) {
	if ack == nil {
		return
	}
	if err != nil {
		ack(wire.EventAck{Result: "error", Message: err.Error()})
		return
	}
	ack(wire.EventAck{Result: "success", Update: update})
}
