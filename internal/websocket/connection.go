package websocket

import (
	"github.com/quillchat/quill/pkg/logger"
	"github.com/quillchat/quill/pkg/wire"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
)

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	logger.Infof("[WebSocket] connection attempt (socket %s)", socketID)

	handshake := client.Handshake()

	authMap := handshake.Auth
	if len(authMap) == 0 {
		logger.Warnf("[WebSocket] missing auth data (socket %s)", socketID)
		client.Emit("error", map[string]string{"message": "Missing authentication data"})
		client.Disconnect(true)
		return
	}

	var authPayload wire.SocketAuthPayload
	if err := decodeAny(authMap, &authPayload); err != nil {
		logger.Warnf("[WebSocket] invalid auth data (socket %s): %v", socketID, err)
		client.Emit("error", map[string]string{"message": "Invalid authentication data"})
		client.Disconnect(true)
		return
	}
	if authPayload.Token == "" {
		logger.Warnf("[WebSocket] empty auth token (socket %s)", socketID)
		client.Emit("error", map[string]string{"message": "Missing authentication token"})
		client.Disconnect(true)
		return
	}

	claims, err := s.jwtManager.VerifyToken(authPayload.Token)
	if err != nil {
		logger.Warnf("[WebSocket] invalid token (socket %s): %v", socketID, err)
		client.Emit("error", map[string]string{"message": "Invalid authentication token"})
		client.Disconnect(true)
		return
	}
	userID := claims.Subject

	sub := s.dispatcher.Register(socketID, userID)
	sd := &SocketData{
		UserID: userID,
		Socket: client,
		Sub:    sub,
	}
	s.socketData.Store(socketID, sd)

	go s.pump(sd)

	logger.Infof("[WebSocket] client ready (user %s, socket %s)", userID, socketID)

	s.registerClientHandlers(client, socketID)
}

// pump drains the subscriber's outbound queue into Socket.IO emits. It ends
// when the subscriber is unregistered and its channel closed.
func (s *SocketIOServer) pump(sd *SocketData) {
	for out := range sd.Sub.C() {
		switch out.Type {
		case "update":
			sd.Socket.Emit("update", out.Update)
		case "presence":
			sd.Socket.Emit("presence", out.Presence)
		case "resync":
			sd.Socket.Emit("resync", out.Resync)
		default:
			logger.Warnf("[WebSocket] unknown outbound type %q (socket %s)", out.Type, sd.Sub.ID())
		}
	}
	logger.Debugf("[WebSocket] pump drained (socket %s)", sd.Sub.ID())
}
