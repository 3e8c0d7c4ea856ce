package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type TelegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
	Parse  string `json:"parse_mode"`
}

func init() {
	_ = godotenv.Load()
}

func SendTelegramMessage(content string) error {
	botToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")
	if botToken == "" || chatID == "" {
		return fmt.Errorf("telegram alerting not configured")
	}

	msg := TelegramMessage{
		ChatID: chatID,
		Text:   content,
		Parse:  "Markdown",
	}
	body, _ := json.Marshal(msg)
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// Warn fires an ops alert asynchronously. A no-op when alerting is not
// configured, so callers never block on it.
func Warn(title, text string) {
	if os.Getenv("TELEGRAM_BOT_TOKEN") == "" {
		return
	}
	content := fmt.Sprintf("⚠️ *%s*\n%s", title, text)
	go func() {
		if err := SendTelegramMessage(content); err != nil {
			log.Printf("telegram alert failed: %v", err)
		}
	}()
}
