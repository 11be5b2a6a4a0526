package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"robotarena/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendQueue  = 64
)

// wsConn 对 websocket 连接的轻量包装：独立写协程 + 非阻塞发送队列
type wsConn struct {
	id      string
	ws      *websocket.Conn
	codec   protocol.Codec
	msgType int

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newWSConn(ws *websocket.Conn, codec protocol.Codec) *wsConn {
	msgType := websocket.TextMessage
	if codec == protocol.Msgpack {
		msgType = websocket.BinaryMessage
	}
	return &wsConn{
		id:      uuid.NewString(),
		ws:      ws,
		codec:   codec,
		msgType: msgType,
		send:    make(chan []byte, sendQueue),
	}
}

func (c *wsConn) ID() string            { return c.id }
func (c *wsConn) Codec() protocol.Codec { return c.codec }

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）
func (c *wsConn) Enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性直接丢弃，不阻塞 Tick
		return false
	}
}

// Close 关闭发送队列与底层连接，可重复调用
func (c *wsConn) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	_ = c.ws.Close()
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定时 ping
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(c.msgType, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息直到出错；onMessage 收到帧类型与内容
func (c *wsConn) readPump(onMessage func(msgType int, payload []byte)) {
	defer c.ws.Close()
	c.ws.SetReadLimit(1 << 16)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { c.ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("websocket read", "conn", c.id, "err", err)
			}
			return
		}
		if onMessage != nil {
			onMessage(mt, payload)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 局域网遥控页面可能来自任意来源
		return true
	},
}

// codecFromQuery ?codec=msgpack 选择出站编码，默认 JSON
func codecFromQuery(r *http.Request) (protocol.Codec, bool) {
	switch name := r.URL.Query().Get("codec"); name {
	case "", protocol.JSON.Name(), protocol.Msgpack.Name():
		return protocol.CodecByName(name), true
	default:
		return nil, false
	}
}

// HandleController 遥控端 WebSocket 接入：/controller?codec=json|msgpack
// 文本帧按 JSON 解码，二进制帧按 msgpack 解码。
func (a *Arena) HandleController(w http.ResponseWriter, r *http.Request) {
	codec, ok := codecFromQuery(r)
	if !ok {
		http.Error(w, "unknown codec", http.StatusBadRequest)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}

	peer := newWSConn(ws, codec)
	a.Relay.Attach(peer)

	go peer.writePump()
	go func() {
		// 读泵退出时通知中继
		defer a.Relay.Detach(peer)
		defer peer.Close()
		peer.readPump(func(mt int, payload []byte) {
			in := protocol.JSON
			if mt == websocket.BinaryMessage {
				in = protocol.Msgpack
			}
			a.Relay.Receive(peer, in, payload)
		})
	}()
}

// HandleView 画面观察端 WebSocket 接入：每个 Tick 推送一帧 msgpack Frame
func (a *Arena) HandleView(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		Log.Warnw("upgrade error", "err", err)
		return
	}

	conn := newWSConn(ws, protocol.Msgpack)
	a.Viewers.Add(conn)

	go conn.writePump()
	go func() {
		defer a.Viewers.Remove(conn)
		defer conn.Close()
		// 观察端不发命令，读泵只用于感知断开
		conn.readPump(nil)
	}()
}
