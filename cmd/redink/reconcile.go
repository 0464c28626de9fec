package main

import (
	"github.com/spf13/cobra"
)

func newReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "按任务目录全量同步历史记录，只报告孤立任务不删除",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			summary, f := e.rec.StartupScan(cmd.Context())
			if f != nil {
				return failure(f)
			}
			orphans := summary.Orphans
			if orphans == nil {
				orphans = []string{}
			}
			return printJSON(cmd, map[string]any{
				"total_tasks":  summary.Total,
				"synced":       summary.Synced,
				"failed":       summary.Failed,
				"orphan_tasks": orphans,
			})
		}),
	}
}
