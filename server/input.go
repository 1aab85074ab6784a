package server

import "lightcycle/protocol"

type eventKind int

const (
	evJoin eventKind = iota
	evInput
	evLeave
)

// event 入站事件：接入、报文、断开。三者走同一条有序队列，
// 保证同一连接上 join 一定先于它的报文被处理
type event struct {
	kind    eventKind
	session *Session
	packet  protocol.ToServer
}
