// =============================================================================
// 文件: internal/trace/server.go
// 描述: 仿真事件流服务 - WebSocket 实时广播
// =============================================================================
package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrcgq/arqsim/internal/emulator"
)

const (
	// 每个客户端的发送队列深度, 写满说明客户端跟不上, 丢弃后续事件
	clientQueueSize = 1024

	// 新客户端接入时回放的历史事件条数
	historySize = 512
)

// Server 事件流服务器, 实现 emulator.TraceSink
// 仿真循环是单线程的, Emit 只做入队, 网络写入由各客户端的独立协程完成
type Server struct {
	listen   string
	path     string
	logLevel int

	httpServer *http.Server
	upgrader   websocket.Upgrader
	clients    sync.Map // *client -> struct{}

	// 历史环形缓冲, 新接入的客户端先看到最近的事件
	mu      sync.Mutex
	history []emulator.TraceEvent

	activeClients int64
	dropped       uint64
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// send 通道永不关闭, 广播方可能与断开处理并发; 退出通过 done 通知
type client struct {
	conn *websocket.Conn
	send chan emulator.TraceEvent
	done chan struct{}
}

// NewServer 创建事件流服务器
func NewServer(listen, path string, logLevel int) *Server {
	return &Server{
		listen:   listen,
		path:     path,
		logLevel: logLevel,
		stopCh:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地观测工具, 允许所有来源
			},
		},
	}
}

// Emit 实现 emulator.TraceSink
func (s *Server) Emit(ev emulator.TraceEvent) {
	s.mu.Lock()
	if len(s.history) >= historySize {
		s.history = s.history[1:]
	}
	s.history = append(s.history, ev)
	s.mu.Unlock()

	s.clients.Range(func(key, _ interface{}) bool {
		c := key.(*client)
		select {
		case c.send <- ev:
		default:
			atomic.AddUint64(&s.dropped, 1)
		}
		return true
	})
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    s.listen,
		Handler: mux,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log(0, "HTTP 服务器错误: %v", err)
		}
	}()

	s.log(1, "事件流服务器已启动: %s%s", s.listen, s.path)
	return nil
}

// handleWebSocket 处理客户端接入
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log(2, "WebSocket 升级失败: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan emulator.TraceEvent, clientQueueSize),
		done: make(chan struct{}),
	}

	// 先回放历史再进入实时流
	s.mu.Lock()
	backlog := append([]emulator.TraceEvent(nil), s.history...)
	s.mu.Unlock()
	for _, ev := range backlog {
		select {
		case c.send <- ev:
		default:
		}
	}

	s.clients.Store(c, struct{}{})
	atomic.AddInt64(&s.activeClients, 1)
	s.log(2, "事件流客户端接入: %s", r.RemoteAddr)

	s.wg.Add(1)
	go s.writeLoop(c)

	// 读取循环只用于感知客户端断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.clients.Delete(c)
	atomic.AddInt64(&s.activeClients, -1)
	close(c.done)
	conn.Close()
}

// writeLoop 客户端发送协程
func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case <-c.done:
			return
		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log(2, "事件流写入错误: %v", err)
				return
			}
		}
	}
}

// Stop 停止服务器
func (s *Server) Stop() {
	close(s.stopCh)

	s.clients.Range(func(key, _ interface{}) bool {
		c := key.(*client)
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
		return true
	})

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}

	s.wg.Wait()
}

// GetActiveClients 获取在线客户端数
func (s *Server) GetActiveClients() int64 {
	return atomic.LoadInt64(&s.activeClients)
}

// GetDropped 获取因客户端过慢被丢弃的事件数
func (s *Server) GetDropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

func (s *Server) log(level int, format string, args ...interface{}) {
	if level > s.logLevel {
		return
	}
	prefix := map[int]string{0: "[ERROR]", 1: "[INFO]", 2: "[DEBUG]"}[level]
	fmt.Printf("%s %s [事件流] %s\n", prefix, time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
}
