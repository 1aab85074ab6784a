// Package client 是终端客户端的网络层：后台协程持续读 socket，
// 按接收顺序把服务端报文投递到 Events 通道，渲染层只消费通道
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"lightcycle/protocol"
)

// Conn 一个到服务端的连接
type Conn struct {
	conn   net.Conn
	id     int16
	width  int32
	height int32
	log    *zap.SugaredLogger

	events chan protocol.ToPlayer
	done   chan struct{}

	wmu sync.Mutex
	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// Dial 连接服务端。收到 hello 时自动回报玩家编号与终端尺寸
func Dial(ctx context.Context, addr string, id int16, width, height int32, log *zap.SugaredLogger) (*Conn, error) {
	if !protocol.ValidPlayerID(id) {
		return nil, fmt.Errorf("invalid player id %d", id)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Conn{
		conn:   nc,
		id:     id,
		width:  width,
		height: height,
		log:    log.With("player", protocol.FormatPlayerID(id)),
		events: make(chan protocol.ToPlayer, 256),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events 服务端报文，严格按接收顺序；连接结束后关闭
func (c *Conn) Events() <-chan protocol.ToPlayer { return c.events }

// SendPosition 上报新位置
func (c *Conn) SendPosition(x, y int32) error {
	return c.send(protocol.ToServer{Command: protocol.CmdClientPosition, X: x, Y: y})
}

// ActivateNitro 开启氮气
func (c *Conn) ActivateNitro() error {
	return c.send(protocol.ToServer{Command: protocol.CmdClientNitro})
}

// Err 读循环结束的原因（正常关闭为 nil）
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close 关闭连接
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Conn) send(p protocol.ToServer) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(protocol.AppendToServer(nil, p))
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := c.conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		recs, rest := protocol.SplitToPlayer(buf)
		buf = append(buf[:0], rest...)
		for _, rec := range recs {
			if rec.Command == protocol.CmdHello {
				if herr := c.send(protocol.ToServer{Command: protocol.CmdClientHello, X: c.width, Y: c.height, Misc: c.id}); herr != nil {
					c.log.Warnw("hello failed", "error", herr)
				}
			}
			select {
			case c.events <- rec:
			case <-c.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			c.log.Debugw("connection closed", "error", err)
			return
		}
	}
}
