// Package ws 实现实时投递层：WebSocket 连接、握手鉴权、主题订阅与信封扇出。
//
// # 帧格式
//
// 线路上每个文本帧是一个 JSON 对象：
//
//	{"command":"SUBSCRIBE","destination":"/topic/conversations/42","headers":{"id":"sub-0"},"receipt":"r-1"}
//
// 客户端命令为 CONNECT、SUBSCRIBE、UNSUBSCRIBE、SEND、DISCONNECT；
// 服务端回复 CONNECTED、MESSAGE、RECEIPT、ERROR。
//
// # 组件
//
//   - Gate：只检查 CONNECT 帧的 Authorization 头，至多调用一次 Authenticator
//   - Router：路由键到会话的订阅表，发布时在读锁内取快照，锁外入队
//   - Dispatcher：按 /app/... 目的地分发 SEND 帧，支持 {param} 段与中间件
//   - Observer：把连接生命周期事件输出为结构化日志
//   - RedisRelay：可选的跨节点中继
//
// # 基本用法
//
//	router := ws.NewRouter(ws.WithRouterLogger(log))
//	gate := ws.NewGate(verifier, ws.AnonymousDeny, log)
//	m, err := ws.NewManager(router, gate, log, ws.WithSendQueueSize(256))
//	if err != nil {
//	    return err
//	}
//
//	ws.HandleSend(m.Dispatcher(), "/app/conversations/{id}/typing",
//	    func(s *ws.Session, r *ws.Request, body *TypingRequest) error {
//	        return broadcaster.OnTyping(r.Ctx, r.Param("id"), s.Principal().UserID, body.Status)
//	    })
//	m.Start()
//
//	engine.GET("/ws/connect", func(c *gin.Context) {
//	    _ = m.HandleUpgrade(c.Writer, c.Request)
//	})
//
// 每个会话只有一条有界出站队列。发布从不阻塞：队列满时按
// SlowConsumerPolicy 丢弃或断开该会话，不影响其他订阅者。
package ws
