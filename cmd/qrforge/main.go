package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/John-Robertt/qrforge/internal/app/run"
	"github.com/John-Robertt/qrforge/internal/config"
	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/fsx"
)

// ReportFileName 是 apply 模式下写入 out/ 的运行报告。
const ReportFileName = "report.json"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage(os.Stdout)
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage(os.Stderr)
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	logger := newLogger()

	cli, err := parseRunArgs(args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printUsage(os.Stderr)
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		logger.Error("读取当前目录失败", "error", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		logger.Error("加载配置失败", "code", config.Code(err), "error", err)
		emitReport(reportForConfigError(cwdAbs, cli, err))
		return 1
	}
	logger.Debug("生效配置", "path", eff.Path, "out", eff.Out, "config", eff.ConfigFile, "apply", eff.Apply)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, obs)

	// apply：写入 <out>/report.json；dry-run 禁止落盘。
	if eff.Apply {
		if err := writeReportFile(eff.Out, rr); err != nil {
			logger.Error("写入 report.json 失败", "out", eff.Out, "error", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	return exitCode(rr)
}

// parseRunArgs 解析 run 子命令参数；只有显式给出的 flag 才会覆盖配置文件。
func parseRunArgs(args []string) (config.CLIArgs, error) {
	var (
		cli  config.CLIArgs
		help bool
	)

	fs := pflag.NewFlagSet("qrforge run", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cli.Out, "out", "", "输出目录（默认 <path>/out）")
	fs.BoolVar(&cli.Apply, "apply", false, "实际写入文件（默认 dry-run）；支持 --apply=false 覆盖配置")
	fs.StringSliceVar(&cli.Formats, "format", nil, "单条导出格式：svg,png,jpg 或 none")
	fs.StringVar(&cli.Bundle, "bundle", "", "打包格式：svg|png|jpg|none")
	fs.StringSliceVar(&cli.Tables, "table", nil, "表格导出：xlsx,pdf")
	fs.StringVar(&cli.Caption, "caption", "", "全局 caption（覆盖配置中的 settings.global_caption）")
	fs.BoolVar(&cli.Overwrite, "overwrite", false, "覆盖 out/ 中已存在的同名文件")
	fs.IntVar(&cli.Concurrency, "concurrency", 0, "并发数 [1,32]")
	fs.BoolVar(&cli.NoCache, "no-cache", false, "不读写 out/.cache 中的解码缓存")
	fs.BoolVarP(&help, "help", "h", false, "显示帮助")

	if err := fs.Parse(args); err != nil {
		return config.CLIArgs{}, err
	}
	if help {
		printRunUsage(os.Stdout, fs)
		return config.CLIArgs{}, pflag.ErrHelp
	}

	cli.OutSet = fs.Changed("out")
	cli.ApplySet = fs.Changed("apply")
	cli.FormatsSet = fs.Changed("format")
	cli.BundleSet = fs.Changed("bundle")
	cli.TablesSet = fs.Changed("table")
	cli.CaptionSet = fs.Changed("caption")
	cli.OverwriteSet = fs.Changed("overwrite")
	cli.ConcurrencySet = fs.Changed("concurrency")
	cli.NoCacheSet = fs.Changed("no-cache")

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 1:
		cli.Path = rest[0]
	default:
		return config.CLIArgs{}, fmt.Errorf("重复的 path：%q 与 %q", rest[0], rest[1])
	}
	return cli, nil
}

// exitCode：解码失败或导出失败都视为本次运行未完全成功。
func exitCode(rr domain.RunReport) int {
	if rr.Summary.DecodeFailed == 0 && rr.Summary.ExportsFailed == 0 {
		return 0
	}
	return 1
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `用法：
  qrforge run [path] [flags]

命令：
  run    解码 path 下的 QR 图片并重新排版导出（默认 dry-run）

使用 "qrforge run --help" 查看详细说明。
`)
}

func printRunUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "用法：\n  qrforge run [path] [flags]\n\n参数：")
	fmt.Fprint(w, fs.FlagUsages())
}

// newLogger 在 stderr 为终端时输出可读文本，否则输出 JSON（便于脚本/CI 采集）。
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：decoded=%d decode_failed=%d written=%d skipped=%d exports_failed=%d",
		s.Decoded, s.DecodeFailed, s.FilesWritten, s.FilesSkipped, s.ExportsFailed,
	)
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		line := summaryLine(rr)
		if exitCode(rr) == 0 {
			fmt.Fprintln(os.Stdout, okStyle.Render(line))
		} else {
			fmt.Fprintln(os.Stdout, failStyle.Render(line))
		}
		for _, it := range rr.Items {
			if it.Status == domain.StatusFailed {
				fmt.Fprintf(os.Stderr, "#%d %s %s: %s\n", it.Position, it.Source, it.ErrorCode, it.ErrorMsg)
			}
			for _, f := range it.Files {
				if f.Status == domain.FileStatusFailed {
					fmt.Fprintf(os.Stderr, "#%d %s %s: %s\n", it.Position, f.Dst, f.ErrorCode, f.ErrorMsg)
				}
			}
		}
		for _, o := range rr.Outputs {
			if o.Status == domain.FileStatusFailed {
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", o.Kind, o.ErrorCode, o.ErrorMsg)
			}
		}
		for _, w := range rr.Warnings {
			fmt.Fprintln(os.Stderr, dimStyle.Render("warning: "+w))
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summaryLine(rr))
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Path:       cwdAbs,
		DryRun:     !(cli.ApplySet && cli.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Outputs: []domain.OutputResult{{
			Kind:      "config",
			Status:    domain.FileStatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(outDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(outDir, ReportFileName, b)
}

func isTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 仅重定向 stderr 时 stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Out, ReportFileName))
	}
	fmt.Fprintf(w, "out: %s\n", eff.Out)
}
