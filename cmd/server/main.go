package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/game-server/internal/actions"
	"github.com/taoyao-code/game-server/internal/app"
	"github.com/taoyao-code/game-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/game-server/internal/config"
	"github.com/taoyao-code/game-server/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: $GAME_CONFIG or configs/example.yaml)")
	printActions := flag.Bool("print-actions", false, "print the action table as YAML and exit")
	flag.Parse()

	if *printActions {
		if err := dumpActions(); err != nil {
			fmt.Fprintf(os.Stderr, "print actions: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动并阻塞至退出信号
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// dumpActions 初始化动作表（同样执行重复消息类型校验）并输出
func dumpActions() error {
	reg, err := app.NewActionRegistry(actions.Builtin(app.ServerID("")), nil, zap.NewNop())
	if err != nil {
		return err
	}
	return app.WriteBindingsYAML(os.Stdout, reg.Bindings())
}
