package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"redink-api/internal/client/api"
	"redink-api/internal/client/pipeline"
	"redink-api/internal/client/reconcile"
	"redink-api/internal/client/tracker"
)

func newGenerateCommand() *cobra.Command {
	var (
		images      []string
		high        bool
		skipContent bool
		brandID     string
	)
	cmd := &cobra.Command{
		Use:   "generate <主题>",
		Short: "生成大纲、图片与文案，并写入历史记录",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			topic := args[0]

			userImages, err := readFiles(images)
			if err != nil {
				return err
			}

			p := pipeline.New(e.client, e.rec)
			outline, f := p.Outline(ctx, topic, userImages)
			if f != nil {
				return failure(f)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "大纲已生成，共 %d 页\n", len(outline.Pages))

			sess := reconcile.NewSession(brandID)
			out := p.Run(ctx, sess, topic, outline, pipeline.Options{
				UserImages:      userImages,
				HighConcurrency: high,
				SkipContent:     skipContent,
				OnEvent:         progressPrinter(cmd),
			})
			e.rec.Wait()

			result := map[string]any{
				"record_id": sess.RecordID(),
				"task_id":   sess.TaskID(),
				"images":    imageSummary(out.Snapshot),
				"failed":    out.Snapshot.FailedIndices(),
			}
			if out.Content != nil {
				result["content"] = out.Content
			}
			if out.ContentFailure != nil {
				result["content_error"] = out.ContentFailure.Message
			}
			if err := printJSON(cmd, result); err != nil {
				return err
			}
			return failure(out.StreamFailure)
		}),
	}
	cmd.Flags().StringSliceVar(&images, "image", nil, "参考图片路径，可重复")
	cmd.Flags().BoolVar(&high, "high-concurrency", false, "除封面外并发生成")
	cmd.Flags().BoolVar(&skipContent, "skip-content", false, "不生成标题/文案/标签")
	cmd.Flags().StringVar(&brandID, "brand", "", "会话关联的品牌 ID")
	return cmd
}

func readFiles(paths []string) ([][]byte, error) {
	out := make([][]byte, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("读取图片 %s: %w", p, err)
		}
		out = append(out, data)
	}
	return out, nil
}

// progressPrinter 每页状态变化时打印一行进度
func progressPrinter(cmd *cobra.Command) func(tracker.Snapshot) {
	last := map[int]tracker.ImageStatus{}
	return func(s tracker.Snapshot) {
		for _, img := range s.Images {
			if last[img.Index] == img.Status {
				continue
			}
			last[img.Index] = img.Status
			line := fmt.Sprintf("[%d/%d] 第 %d 页 %s", s.Current, s.Total, img.Index, img.Status)
			if img.ErrorMessage != "" {
				line += ": " + img.ErrorMessage
			}
			fmt.Fprintln(cmd.ErrOrStderr(), line)
		}
	}
}

func imageSummary(s tracker.Snapshot) []map[string]any {
	out := make([]map[string]any, 0, len(s.Images))
	for _, img := range s.Images {
		item := map[string]any{"index": img.Index, "status": img.Status}
		if img.URL != "" {
			item["url"] = img.URL
			if task, file, ok := api.ParseImageURL(img.URL); ok {
				item["thumbnail_url"] = api.ThumbnailURL(task, file)
			}
		}
		if img.ErrorMessage != "" {
			item["error"] = img.ErrorMessage
		}
		out = append(out, item)
	}
	return out
}
