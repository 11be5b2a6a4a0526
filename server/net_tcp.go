package server

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"robotarena/protocol"
)

// tcpPeer 原始 TCP 遥控端：每行一条 JSON 命令
type tcpPeer struct {
	id   string
	conn net.Conn

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newTCPPeer(conn net.Conn) *tcpPeer {
	return &tcpPeer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendQueue),
	}
}

func (p *tcpPeer) ID() string            { return p.id }
func (p *tcpPeer) Codec() protocol.Codec { return protocol.JSON }

func (p *tcpPeer) Enqueue(b []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- b:
		return true
	default:
		return false
	}
}

func (p *tcpPeer) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
	p.mu.Unlock()
	_ = p.conn.Close()
}

func (p *tcpPeer) writeLoop() {
	defer p.conn.Close()
	for msg := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if _, err := p.conn.Write(append(msg, '\n')); err != nil {
			return
		}
	}
}

func (p *tcpPeer) readLoop(relay *Relay) {
	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 4096), 1<<16)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		relay.Receive(p, protocol.JSON, line)
	}
	if err := scanner.Err(); err != nil {
		Log.Debugw("tcp read", "peer", p.id, "err", err)
	}
}

// ServeTCP 在 ln 上接受遥控端连接，直到 ctx 取消或监听出错
func ServeTCP(ctx context.Context, ln net.Listener, relay *Relay) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	Log.Infow("tcp relay listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "tcp accept")
		}
		peer := newTCPPeer(conn)
		relay.Attach(peer)
		go peer.writeLoop()
		go func() {
			defer relay.Detach(peer)
			defer peer.Close()
			peer.readLoop(relay)
		}()
	}
}
