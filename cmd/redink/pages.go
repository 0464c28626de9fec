package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"redink-api/internal/client/api"
	"redink-api/internal/client/pipeline"
	"redink-api/internal/client/reconcile"
	"redink-api/internal/client/versions"
)

// restore 打开已有记录并恢复进度与版本表；记录已删除时报错
func restore(ctx context.Context, e *env, id string) (*pipeline.Pipeline, *reconcile.SessionContext, error) {
	sess, _, ok := e.rec.Restore(ctx, id)
	if !ok {
		return nil, nil, fmt.Errorf("记录 %s 不存在或已删除", id)
	}
	if sess.TaskID() == "" {
		return nil, nil, fmt.Errorf("记录 %s 还没有生成任务", id)
	}
	p := pipeline.New(e.client, e.rec)
	p.Hydrate(sess)
	return p, sess, nil
}

func pageIndex(arg string) (int, error) {
	i, err := strconv.Atoi(arg)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("页码无效: %s", arg)
	}
	return i, nil
}

func printVersion(cmd *cobra.Command, e *env, index int, v versions.Version) error {
	e.rec.Wait()
	return printJSON(cmd, map[string]any{
		"index":    index,
		"filename": v.Filename,
		"url":      v.URL,
		"source":   v.Source,
	})
}

func newRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <记录ID>",
		Short: "重新生成记录中所有失败的页面",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			p, sess, err := restore(ctx, e, args[0])
			if err != nil {
				return err
			}
			finish, f := p.RetryFailed(ctx, sess, pipeline.Options{OnEvent: progressPrinter(cmd)})
			if f != nil {
				return failure(f)
			}
			e.rec.Wait()
			return printJSON(cmd, map[string]any{
				"success": finish.Success,
				"failed":  p.Tracker().Snapshot().FailedIndices(),
				"images":  imageSummary(p.Tracker().Snapshot()),
			})
		}),
	}
}

func newRegenerateCommand() *cobra.Command {
	var noReference bool
	cmd := &cobra.Command{
		Use:   "regenerate <记录ID> <页码>",
		Short: "重绘单页，结果保存为新版本",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			index, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			p, sess, err := restore(ctx, e, args[0])
			if err != nil {
				return err
			}
			v, f := p.Regenerate(ctx, sess, index, !noReference)
			if f != nil {
				return failure(f)
			}
			return printVersion(cmd, e, index, v)
		}),
	}
	cmd.Flags().BoolVar(&noReference, "no-reference", false, "不使用封面作为参考图")
	return cmd
}

func newEditCommand() *cobra.Command {
	var (
		maskPath   string
		canvasPath string
	)
	cmd := &cobra.Command{
		Use:   "edit <记录ID> <页码> [提示词]",
		Short: "局部重绘（--mask）或保存画布结果（--canvas）",
		Args:  cobra.RangeArgs(2, 3),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			index, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			if (maskPath == "") == (canvasPath == "") {
				return fmt.Errorf("需要且只能指定 --mask 或 --canvas 之一")
			}
			p, sess, err := restore(ctx, e, args[0])
			if err != nil {
				return err
			}

			if canvasPath != "" {
				data, err := os.ReadFile(canvasPath)
				if err != nil {
					return err
				}
				v, f := p.SaveCanvas(ctx, sess, index, data)
				if f != nil {
					return failure(f)
				}
				return printVersion(cmd, e, index, v)
			}

			if len(args) < 3 || args[2] == "" {
				return fmt.Errorf("局部重绘需要提示词")
			}
			mask, err := os.ReadFile(maskPath)
			if err != nil {
				return err
			}
			v, f := p.Inpaint(ctx, sess, index, args[2], mask)
			if f != nil {
				return failure(f)
			}
			return printVersion(cmd, e, index, v)
		}),
	}
	cmd.Flags().StringVar(&maskPath, "mask", "", "蒙版 PNG，透明区域为重绘区域")
	cmd.Flags().StringVar(&canvasPath, "canvas", "", "编辑后的整页图片")
	return cmd
}

func newLogoCommand() *cobra.Command {
	var style string
	cmd := &cobra.Command{
		Use:   "logo <记录ID> <页码>",
		Short: "为单页叠加激活品牌的 logo，结果保存为新版本（用 select 切回原图）",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			index, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			p, sess, err := restore(ctx, e, args[0])
			if err != nil {
				return err
			}
			v, f := p.ToggleLogo(ctx, sess, index, true, style)
			if f != nil {
				return failure(f)
			}
			return printVersion(cmd, e, index, v)
		}),
	}
	cmd.Flags().StringVar(&style, "style", "corner", "corner | watermark | badge")
	return cmd
}

func newSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <记录ID> <页码> <文件名>",
		Short: "把单页切换到任务目录中的指定版本",
		Args:  cobra.ExactArgs(3),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			index, err := pageIndex(args[1])
			if err != nil {
				return err
			}
			p, sess, err := restore(ctx, e, args[0])
			if err != nil {
				return err
			}
			filename := args[2]
			if _, f := e.client.FetchImage(ctx, sess.TaskID(), filename).Unwrap(); f != nil {
				return failure(f)
			}
			// 恢复的会话只登记了当前版本
			p.Versions().Append(index, api.ImageURL(sess.TaskID(), filename), versions.SourceGenerate)
			for i, v := range p.Versions().List(index) {
				if v.Filename != filename {
					continue
				}
				selected, err := p.SelectVersion(ctx, sess, index, i)
				if err != nil {
					return err
				}
				return printVersion(cmd, e, index, selected)
			}
			return fmt.Errorf("版本 %s 不存在", filename)
		}),
	}
}
