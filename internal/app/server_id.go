package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ServerID 服务器实例ID
// 优先级：配置 app.serverId > 环境变量 SERVER_ID > game-server-{hostname}-{uuid前8位}
func ServerID(configured string) string {
	if configured != "" {
		return configured
	}
	if id := os.Getenv("SERVER_ID"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("game-server-%s-%s", hostname, uuid.New().String()[:8])
}
