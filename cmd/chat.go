package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var (
		gatewayURL string
		token      string
		agentName  string
	)
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to a running gateway from the terminal",
		Long: "chat connects to the gateway websocket. With a message argument it sends\n" +
			"one message and prints the reply; without, it opens an interactive session.",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runChat(gatewayURL, token, agentName, strings.Join(args, " ")); err != nil {
				fmt.Fprintf(os.Stderr, "chat failed: %v\n", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringVar(&gatewayURL, "url", "", "gateway base URL (default from config)")
	cmd.Flags().StringVar(&token, "token", "", "dashboard token (default from config or $DOMO_DASHBOARD_TOKEN)")
	cmd.Flags().StringVar(&agentName, "agent", "", "agent to address (default: routing by @mention)")
	return cmd
}

// chatFrame is the wire shape for both rpc responses and pushed events; the
// Event field distinguishes them.
type chatFrame struct {
	ID     int64           `json:"id,omitempty"`
	Event  string          `json:"event,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type chatReply struct {
	Reply      string  `json:"reply"`
	Agent      string  `json:"agent"`
	Tier       string  `json:"tier"`
	Model      string  `json:"model"`
	CostGBP    float64 `json:"cost_gbp"`
	DurationMS int64   `json:"duration_ms"`
}

func runChat(gatewayURL, token, agentName, oneShot string) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	if gatewayURL == "" {
		host := cfg.Dashboard.Host
		if host == "" {
			host = "127.0.0.1"
		}
		port := cfg.Dashboard.Port
		if port == 0 {
			port = 3333
		}
		gatewayURL = fmt.Sprintf("ws://%s:%d", host, port)
	}
	gatewayURL = strings.Replace(gatewayURL, "http://", "ws://", 1)
	gatewayURL = strings.Replace(gatewayURL, "https://", "wss://", 1)
	if token == "" {
		token = cfg.Dashboard.Token
	}
	if token == "" {
		return fmt.Errorf("no dashboard token: pass --token or run domo onboard")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.Dial(ctx, gatewayURL+"/ws?token="+token, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("gateway not reachable at %s (is domo gateway running?): %w", gatewayURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(1 << 20)

	session := &chatSession{conn: conn, agent: agentName}
	if oneShot != "" {
		return session.send(context.Background(), oneShot)
	}

	fmt.Println("Connected. Type a message, or /quit to leave.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := session.send(context.Background(), line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

type chatSession struct {
	conn   *websocket.Conn
	agent  string
	nextID int64
}

// send issues one chat.send call and prints the reply. Pushed events arriving
// before the response are skipped.
func (s *chatSession) send(ctx context.Context, message string) error {
	s.nextID++
	id := s.nextID
	params, _ := json.Marshal(map[string]string{"message": message, "agent": s.agent})
	req := map[string]any{"id": id, "method": protocol.MethodChatSend, "params": json.RawMessage(params)}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, req); err != nil {
		return err
	}

	for {
		var frame chatFrame
		if err := wsjson.Read(ctx, s.conn, &frame); err != nil {
			return err
		}
		if frame.Event != "" || frame.ID != id {
			continue
		}
		if frame.Error != "" {
			return fmt.Errorf("%s", frame.Error)
		}
		var reply chatReply
		if err := json.Unmarshal(frame.Result, &reply); err != nil {
			return err
		}
		printReply(reply)
		return nil
	}
}

func printReply(r chatReply) {
	header := fmt.Sprintf("%s  (%s, %s, £%.4f, %dms)", r.Agent, r.Model, r.Tier, r.CostGBP, r.DurationMS)
	fmt.Println(header)
	fmt.Println(strings.Repeat("─", min(runewidth.StringWidth(header), 72)))
	fmt.Println(r.Reply)
}
