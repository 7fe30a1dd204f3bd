package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/zhpublish/pkg/poster"
)

type publishOptions struct {
	title       string
	content     string
	contentFile string
	images      []string
	topic       string
}

// request builds the publish request, reading the body from file if asked.
func (p *publishOptions) request() (poster.Request, error) {
	content := p.content
	if p.contentFile != "" {
		data, err := os.ReadFile(p.contentFile)
		if err != nil {
			return poster.Request{}, fmt.Errorf("failed to read content file: %w", err)
		}
		content = string(data)
	}
	if content == "" {
		return poster.Request{}, fmt.Errorf("one of --content or --content-file is required")
	}

	return poster.Request{
		Title:   p.title,
		Content: content,
		Images:  p.images,
		Topic:   p.topic,
	}, nil
}

// publish: publish one article and print success or error: <message>.
func publishCmd(opts *rootOptions) *cobra.Command {
	p := &publishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an article",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := p.request()
			if err != nil {
				return err
			}

			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			resp := a.poster(a.prompter(false)).Publish(cmd.Context(), req)
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text())
			for _, w := range resp.Result.Warnings {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if !resp.OK() {
				return errReported
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&p.title, "title", "", "article title (cut to 100 characters)")
	cmd.Flags().StringVar(&p.content, "content", "", "article body")
	cmd.Flags().StringVar(&p.contentFile, "content-file", "", "file holding the article body")
	cmd.Flags().StringArrayVar(&p.images, "image", nil, "cover image path (repeatable, the first is uploaded)")
	cmd.Flags().StringVar(&p.topic, "topic", "", "existing topic to attach")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
	return cmd
}
