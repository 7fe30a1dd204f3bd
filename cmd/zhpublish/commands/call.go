package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/zhpublish/pkg/tools"
)

// call: read one tool call from stdin and print its result text.
func callCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "call",
		Short: "Run a tool call read from stdin",
		Long: `Reads a tool call such as

  <tool>
  <tool_name>create_article</tool_name>
  <arguments>
    <title>Hello</title>
    <content>At least nine characters.</content>
    <images><image>/path/cover.png</image></images>
    <topic>Go</topic>
  </arguments>
  </tool>

and prints "success" or "error: <message>".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read tool call: %w", err)
			}

			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			p := a.poster(a.prompter(true))
			registry, err := tools.NewRegistry(tools.NewCreateArticleTool(p), tools.NewLoginTool(p))
			if err != nil {
				return err
			}

			result := registry.Dispatch(cmd.Context(), string(input))
			fmt.Fprintln(cmd.OutOrStdout(), result)
			if strings.HasPrefix(result, "error:") {
				return errReported
			}
			return nil
		},
	}
}
