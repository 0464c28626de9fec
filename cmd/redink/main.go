// Package main 红墨命令行客户端：无界面地驱动完整创作流程
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"redink-api/internal/client/api"
	"redink-api/internal/client/reconcile"
	"redink-api/internal/config"
	"redink-api/pkg/logger"
)

// env 命令共享的客户端与回写器
type env struct {
	client *api.Client
	rec    *reconcile.Reconciler
}

var (
	configDir string
	baseURL   string
	logLevel  string
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "redink",
		Short:         "红墨图文创作命令行客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config", config.DefaultDir, "配置目录")
	root.PersistentFlags().StringVar(&baseURL, "api-url", "", "服务端地址，覆盖配置中的 client.base_url")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "日志级别")

	root.AddCommand(
		newGenerateCommand(),
		newRetryCommand(),
		newRegenerateCommand(),
		newEditCommand(),
		newLogoCommand(),
		newSelectCommand(),
		newHistoryCommand(),
		newBrandCommand(),
		newReconcileCommand(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// setup 加载配置并创建客户端；返回的 close 会等待排队中的回写完成
func setup() (*env, func(), error) {
	cfg, err := config.LoadFrom(configDir)
	if err != nil {
		return nil, nil, err
	}
	logger.InitWithWriter(os.Stderr, logLevel, "text")

	opts := api.OptionsFromConfig(cfg.Client)
	if baseURL != "" {
		opts.BaseURL = baseURL
	}
	client := api.New(opts)
	rec := reconcile.New(client)
	return &env{client: client, rec: rec}, rec.Close, nil
}

// withEnv 包装 RunE，统一处理初始化与收尾
func withEnv(run func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, closeFn, err := setup()
		if err != nil {
			return err
		}
		defer closeFn()
		return run(cmd, args, e)
	}
}

// printJSON 结果以缩进 JSON 写到 stdout
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failure 把边界失败转成命令错误，需要配置时附带提示
func failure(f *api.Failure) error {
	if f == nil {
		return nil
	}
	if f.NeedsConfiguration() {
		return fmt.Errorf("%s（请检查服务端模型配置）", f.Message)
	}
	return f
}
