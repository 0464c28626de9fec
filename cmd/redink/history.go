package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "管理历史记录",
	}
	cmd.AddCommand(
		newHistoryListCommand(),
		newHistoryGetCommand(),
		newHistorySearchCommand(),
		newHistoryStatsCommand(),
		newHistoryDeleteCommand(),
		newHistoryExistsCommand(),
		newHistoryExportCommand(),
		newHistoryDownloadCommand(),
		newHistoryScanCommand(),
	)
	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var (
		page     int
		pageSize int
		status   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "分页列出记录",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			res, f := e.client.ListHistory(cmd.Context(), page, pageSize, status).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, res)
		}),
	}
	cmd.Flags().IntVar(&page, "page", 1, "页码")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "每页条数")
	cmd.Flags().StringVar(&status, "status", "", "按状态过滤：draft | generating | partial | completed | error")
	return cmd
}

func newHistoryGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <记录ID>",
		Short: "查看记录详情",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			rec, f := e.client.GetHistory(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, rec)
		}),
	}
}

func newHistorySearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <关键词>",
		Short: "按标题搜索记录",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			records, f := e.client.SearchHistory(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, records)
		}),
	}
}

func newHistoryStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "按状态统计记录数",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			stats, f := e.client.HistoryStats(cmd.Context()).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, stats)
		}),
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <记录ID>",
		Short: "删除记录及其任务图片",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			if _, f := e.client.DeleteHistory(cmd.Context(), args[0]).Unwrap(); f != nil {
				return failure(f)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "已删除", args[0])
			return nil
		}),
	}
}

func newHistoryExistsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <记录ID>",
		Short: "检查记录是否存在",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ok, f := e.client.HistoryExists(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, map[string]bool{"exists": ok})
		}),
	}
}

// writeDownload 写入文件；未指定路径时使用服务端给出的文件名
func writeDownload(cmd *cobra.Command, output, suggested string, body []byte) error {
	if output == "" {
		output = suggested
	}
	if output == "" {
		return fmt.Errorf("无法确定输出文件名，请使用 -o 指定")
	}
	if output == "-" {
		_, err := cmd.OutOrStdout().Write(body)
		return err
	}
	if err := os.WriteFile(output, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "已保存 %s（%d 字节）\n", output, len(body))
	return nil
}

func newHistoryExportCommand() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <记录ID>",
		Short: "导出记录为 markdown 或 html",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			if format != "markdown" && format != "html" {
				return fmt.Errorf("不支持的导出格式: %s", format)
			}
			d, f := e.client.ExportHistory(cmd.Context(), args[0], format).Unwrap()
			if f != nil {
				return failure(f)
			}
			return writeDownload(cmd, output, d.Filename, d.Body)
		}),
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "导出格式：markdown | html")
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出文件，- 表示标准输出")
	return cmd
}

func newHistoryDownloadCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <记录ID>",
		Short: "打包下载记录的全部图片",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			d, f := e.client.DownloadHistory(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return writeDownload(cmd, output, d.Filename, d.Body)
		}),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "输出 zip 文件")
	return cmd
}

func newHistoryScanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <任务ID>",
		Short: "按任务目录中的图片同步记录",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			res, f := e.client.ScanTask(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, res)
		}),
	}
}
