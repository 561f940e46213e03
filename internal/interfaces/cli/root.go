// Package cli 提供离线查询模型目录、层级策略与费用估算的命令行
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// options 全局输出选项
type options struct {
	noColor bool
	asJSON  bool
}

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "proposal-cli",
		Short:         "Proposal AI model catalog and cost tool",
		Long:          "Inspect the model catalog, section level strategies and cost estimates without calling any provider.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print JSON instead of tables")

	root.AddCommand(
		newModelsCommand(opts),
		newStrategiesCommand(opts),
		newEstimateCommand(opts),
		newRecommendCommand(opts),
	)
	return root
}

// colorEnabled 仅在终端输出且未禁用时着色
func (o *options) colorEnabled(w io.Writer) bool {
	if o.noColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (o *options) title(w io.Writer, text string) {
	style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	if !o.colorEnabled(w) {
		style = lipgloss.NewStyle()
	}
	fmt.Fprintln(w, style.Render(text))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
