package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillchat/quill/internal/crypto"
	"github.com/quillchat/quill/internal/engine"
	"github.com/quillchat/quill/pkg/logger"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"
)

// SocketIOServer is the push channel. Each authenticated connection gets a
// subscriber in the dispatcher's hub; a pump goroutine drains the
// subscriber's queue into Socket.IO emits.
type SocketIOServer struct {
	jwtManager *crypto.JWTManager
	dispatcher *engine.Dispatcher
	server     *socket.Server
	socketData sync.Map // socket ID -> *SocketData
}

// NewSocketIOServer creates the Socket.IO server and installs its handlers.
func NewSocketIOServer(jwtManager *crypto.JWTManager, dispatcher *engine.Dispatcher) *SocketIOServer {
	opts := socket.DefaultServerOptions()

	opts.SetCors(&sockettypes.Cors{
		Origin:      "*",
		Credentials: false,
	})

	// PingInterval controls how quickly abruptly-dropped clients are
	// detected; PingTimeout is how long we wait for a pong. Together they
	// bound how stale a user's online status can be after a crash.
	const PingInterval = 5 * time.Second
	const PingTimeout = 15 * time.Second

	opts.SetPingInterval(PingInterval)
	opts.SetPingTimeout(PingTimeout)
	opts.SetPath("/v1/updates")

	s := &SocketIOServer{
		jwtManager: jwtManager,
		dispatcher: dispatcher,
		server:     socket.NewServer(nil, opts),
	}

	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})

	return s
}

// SocketData stores connection metadata for each socket.
type SocketData struct {
	UserID string
	Socket *socket.Socket
	Sub    *engine.Subscriber
}

// getSocketData retrieves socket metadata by socket ID.
func (s *SocketIOServer) getSocketData(socketID string) *SocketData {
	if data, ok := s.socketData.Load(socketID); ok {
		if sd, ok := data.(*SocketData); ok {
			return sd
		}
	}
	return &SocketData{}
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// getFirstAnyWithAck splits a Socket.IO event's variadic data into the first
// payload and the trailing acknowledgment callback, if any.
func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}

// HandleSocketIO creates a Gin handler serving the Socket.IO endpoint.
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "false")

		if c.Request.Method == "OPTIONS" {
			c.Status(http.StatusOK)
			return
		}

		logger.Tracef("[WebSocket] request: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server.
func (s *SocketIOServer) Close() error {
	s.server.Close(nil)
	return nil
}
