package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"redink-api/internal/client/api"
	"redink-api/internal/domain/entity"
)

func newBrandCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "brand",
		Short: "管理品牌风格库",
	}
	cmd.AddCommand(
		newBrandListCommand(),
		newBrandCreateCommand(),
		newBrandGetCommand(),
		newBrandActiveCommand(),
		newBrandActivateCommand(),
		newBrandDeleteCommand(),
		newBrandLogoCommand(),
		newBrandAddContentCommand(),
		newBrandExtractStyleCommand(),
	)
	return cmd
}

func newBrandListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出品牌",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			brands, f := e.client.ListBrands(cmd.Context()).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, brands)
		}),
	}
}

func newBrandCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <名称>",
		Short: "创建品牌，首个品牌自动激活",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			b, f := e.client.CreateBrand(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, b)
		}),
	}
}

func newBrandGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <品牌ID>",
		Short: "查看品牌详情",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			d, f := e.client.GetBrand(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, d)
		}),
	}
}

func newBrandActiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "查看当前激活的品牌",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			d, f := e.client.ActiveBrand(cmd.Context()).Unwrap()
			if f != nil {
				return failure(f)
			}
			if d == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "没有激活的品牌")
				return nil
			}
			return printJSON(cmd, d)
		}),
	}
}

func newBrandActivateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <品牌ID>",
		Short: "激活品牌",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			b, f := e.client.ActivateBrand(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, b)
		}),
	}
}

func newBrandDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <品牌ID>",
		Short: "删除品牌及其素材",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			if _, f := e.client.DeleteBrand(cmd.Context(), args[0]).Unwrap(); f != nil {
				return failure(f)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "已删除", args[0])
			return nil
		}),
	}
}

func newBrandLogoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logo <品牌ID> <图片文件>",
		Short: "上传品牌 logo，替换已有 logo",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			logo, f := e.client.UploadLogo(cmd.Context(), args[0], filepath.Base(args[1]), data).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, logo)
		}),
	}
}

func newBrandAddContentCommand() *cobra.Command {
	var (
		competitor bool
		title      string
		text       string
		link       string
		imageURLs  []string
	)
	cmd := &cobra.Command{
		Use:   "add-content <品牌ID>",
		Short: "添加品牌样本或竞品样本，--link 时先解析文章链接",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			ctx := cmd.Context()
			sample := api.ContentSample{Title: title, Text: text, ImageURLs: imageURLs}
			if link != "" {
				parsed, f := e.client.ParseLink(ctx, link).Unwrap()
				if f != nil {
					return failure(f)
				}
				if !parsed.Success || parsed.Data == nil {
					return fmt.Errorf("链接解析失败: %s，请改用 --title/--text 手动填写", parsed.Error)
				}
				sample.Type = entity.ContentSourceLink
				sample.SourceURL = parsed.Data.SourceURL
				if sample.Title == "" {
					sample.Title = parsed.Data.Title
				}
				if sample.Text == "" {
					sample.Text = parsed.Data.Text
				}
				if len(sample.ImageURLs) == 0 {
					sample.ImageURLs = parsed.Data.Images
				}
			}
			if sample.Title == "" && sample.Text == "" {
				return fmt.Errorf("标题和正文不能同时为空")
			}
			item, f := e.client.AddContent(ctx, args[0], competitor, sample).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, item)
		}),
	}
	cmd.Flags().BoolVar(&competitor, "competitor", false, "作为竞品样本添加")
	cmd.Flags().StringVar(&title, "title", "", "样本标题")
	cmd.Flags().StringVar(&text, "text", "", "样本正文")
	cmd.Flags().StringVar(&link, "link", "", "文章链接")
	cmd.Flags().StringSliceVar(&imageURLs, "image-url", nil, "样本图片地址，可重复")
	return cmd
}

func newBrandExtractStyleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-style <品牌ID>",
		Short: "根据样本提炼品牌风格",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			dna, f := e.client.ExtractStyle(cmd.Context(), args[0]).Unwrap()
			if f != nil {
				return failure(f)
			}
			return printJSON(cmd, dna)
		}),
	}
}
