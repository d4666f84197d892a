// 命令行聊天客户端示例
//
//	go run ./example/client -token $(qim token -u alice) -conversation <id>
//
// 标准输入的每一行作为一条消息发送，会话主题上的事件原样打印
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tokmz/qim/internal/api"
	"github.com/tokmz/qim/pkg/ws"
)

func main() {
	var (
		addr         = flag.String("addr", "ws://127.0.0.1:8080/ws/connect", "websocket endpoint")
		token        = flag.String("token", "", "access token from `qim token`")
		conversation = flag.String("conversation", "", "conversation id to join")
	)
	flag.Parse()
	if *conversation == "" {
		log.Fatal("-conversation is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*addr, http.Header{})
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// CONNECT 携带令牌，SUBSCRIBE 会话主题与个人通知队列
	connect := &ws.Frame{Command: ws.CommandConnect}
	if *token != "" {
		connect.SetHeader(ws.HeaderAuthorization, "Bearer "+*token)
	}
	send(conn, connect)
	send(conn, (&ws.Frame{
		Command:     ws.CommandSubscribe,
		Destination: string(ws.ConversationTopic(*conversation)),
	}).SetHeader(ws.HeaderSubscription, "conversation"))
	send(conn, (&ws.Frame{
		Command:     ws.CommandSubscribe,
		Destination: ws.UserNotificationsQueue,
	}).SetHeader(ws.HeaderSubscription, "notifications"))

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				os.Exit(0)
			}
			f, err := ws.DecodeFrame(data)
			if err != nil {
				log.Printf("decode: %v", err)
				continue
			}
			switch f.Command {
			case ws.CommandError:
				msg, _ := f.Header(ws.HeaderMessage)
				fmt.Printf("! %s\n", msg)
			case ws.CommandMessage:
				fmt.Printf("[%s] %s\n", f.Destination, f.Body)
			default:
				fmt.Printf("< %s\n", f.Command)
			}
		}
	}()

	dest := strings.ReplaceAll(api.DestSendMessage, "{id}", *conversation)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		body, _ := json.Marshal(map[string]string{"content": line})
		send(conn, &ws.Frame{Command: ws.CommandSend, Destination: dest, Body: body})
	}
}

func send(conn *websocket.Conn, f *ws.Frame) {
	data, err := f.Encode()
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Fatalf("write: %v", err)
	}
}
