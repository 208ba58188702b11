package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/qrforge/internal/domain"
	"github.com/John-Robertt/qrforge/internal/infra/imgx"
)

const (
	// ErrCodeNotFound 表示无参运行但 cwd 下没有配置文件。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示无参运行但配置文件缺少 path 字段。
	ErrCodeMissingPath = domain.ErrCodeConfigMissing
)

const (
	// DefaultConcurrency 是并发的内置默认值（当配置未指定时）。
	DefaultConcurrency = 4
	// DefaultOutDir 是相对于输入目录的默认输出目录。
	DefaultOutDir = "out"
)

// FileNames 是配置文件的候选名，按顺序取第一个存在的。
var FileNames = []string{"qrforge.yaml", "qrforge.yml", "qrforge.json"}

// DefaultFormats 是未指定 formats 时的单条导出格式。
var DefaultFormats = []domain.Format{domain.FormatPNG}

// CLIArgs 保留“是否显式指定”的信息，保证 --apply=false 之类的覆盖可实现。
type CLIArgs struct {
	Path string

	Out    string
	OutSet bool

	Apply    bool
	ApplySet bool

	Formats    []string
	FormatsSet bool

	Bundle    string
	BundleSet bool

	Tables    []string
	TablesSet bool

	Caption    string
	CaptionSet bool

	Overwrite    bool
	OverwriteSet bool

	Concurrency    int
	ConcurrencySet bool

	NoCache    bool
	NoCacheSet bool
}

// ItemEdit 是对第 position 条记录（1-based）的编辑；nil 表示不修改。
type ItemEdit struct {
	Position int     `yaml:"position" json:"position"`
	Caption  *string `yaml:"caption" json:"caption"`
	Suffix   *string `yaml:"suffix" json:"suffix"`
}

// FileConfig 对应 qrforge.yaml / qrforge.json 的解析结构。
//
// Settings 在解析前先填入 DefaultSettings，文件中未出现的字段保持默认值。
type FileConfig struct {
	Path        string          `yaml:"path" json:"path"`
	Out         string          `yaml:"out" json:"out"`
	Apply       *bool           `yaml:"apply" json:"apply"`
	Concurrency int             `yaml:"concurrency" json:"concurrency"`
	Formats     []string        `yaml:"formats" json:"formats"`
	Bundle      string          `yaml:"bundle" json:"bundle"`
	Tables      []string        `yaml:"tables" json:"tables"`
	Overwrite   *bool           `yaml:"overwrite" json:"overwrite"`
	JPEGQuality int             `yaml:"jpeg_quality" json:"jpeg_quality"`
	ExcludeDirs []string        `yaml:"exclude_dirs" json:"exclude_dirs"`
	NoCache     *bool           `yaml:"no_cache" json:"no_cache"`
	Settings    domain.Settings `yaml:"settings" json:"settings"`
	Items       []ItemEdit      `yaml:"items" json:"items"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path string
	Out  string

	// ConfigFile 是实际读取的配置文件；未读取任何文件时为空。
	ConfigFile string

	Apply       bool
	Overwrite   bool
	Concurrency int

	Formats     []domain.Format
	Bundle      domain.Format // 为空表示不打包
	Tables      []domain.TableKind
	JPEGQuality int

	ExcludeDirs []string
	// NoCache 关闭 <out>/.cache 下的解码缓存。
	NoCache bool

	Settings domain.Settings
	Items    []ItemEdit
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 按约定发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/qrforge.yaml（可选）
// 2) CLI 未提供 path：必须读取 <cwd>/qrforge.yaml（必选），且其中必须包含 path
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.Path) != "" {
		// CLI 给了 path：配置文件可选。
		absPath := absCleanFrom(cwdAbs, cli.Path)
		cfgPath, fc, exists, err := findFileConfig(absPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
		return merge(absPath, cli, fc, cfgPath)
	}

	cfgPath, fc, exists, err := findFileConfig(cwdAbs)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: filepath.Join(cwdAbs, FileNames[0]), Err: os.ErrNotExist}
	}
	if strings.TrimSpace(fc.Path) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	// 配置文件中的相对 path 以配置文件所在目录为基准。
	absPath := absCleanFrom(cwdAbs, fc.Path)
	return merge(absPath, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) (EffectiveConfig, error) {
		p := cfgPath
		if p == "" {
			p = absPath
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	overwrite := false
	if cli.OverwriteSet {
		overwrite = cli.Overwrite
	} else if fc.Overwrite != nil {
		overwrite = *fc.Overwrite
	}

	noCache := false
	if cli.NoCacheSet {
		noCache = cli.NoCache
	} else if fc.NoCache != nil {
		noCache = *fc.NoCache
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}

	out := strings.TrimSpace(fc.Out)
	if cli.OutSet {
		out = strings.TrimSpace(cli.Out)
	}
	if out == "" {
		out = DefaultOutDir
	}
	out = absCleanFrom(absPath, out)

	rawFormats := fc.Formats
	if cli.FormatsSet {
		rawFormats = cli.Formats
	}
	formats, err := parseFormats(rawFormats)
	if err != nil {
		return invalid(err)
	}

	rawBundle := fc.Bundle
	if cli.BundleSet {
		rawBundle = cli.Bundle
	}
	var bundle domain.Format
	if strings.TrimSpace(rawBundle) != "" && !strings.EqualFold(strings.TrimSpace(rawBundle), "none") {
		bundle, err = domain.ParseFormat(rawBundle)
		if err != nil {
			return invalid(fmt.Errorf("bundle：%w", err))
		}
	}

	rawTables := fc.Tables
	if cli.TablesSet {
		rawTables = cli.Tables
	}
	tables, err := parseTables(rawTables)
	if err != nil {
		return invalid(err)
	}

	quality := fc.JPEGQuality
	if quality == 0 {
		quality = imgx.DefaultJPEGQuality
	}
	if quality < 1 || quality > 100 {
		return invalid(fmt.Errorf("jpeg_quality 必须在 [1, 100]，实际 %d", quality))
	}

	settings := fc.Settings
	if cli.CaptionSet {
		settings.GlobalCaption = cli.Caption
	}
	if err := settings.Validate(); err != nil {
		return invalid(err)
	}

	seen := make(map[int]struct{}, len(fc.Items))
	for _, it := range fc.Items {
		if it.Position < 1 {
			return invalid(fmt.Errorf("items.position 必须 >= 1，实际 %d", it.Position))
		}
		if _, ok := seen[it.Position]; ok {
			return invalid(fmt.Errorf("items.position 重复：%d", it.Position))
		}
		seen[it.Position] = struct{}{}
	}

	return EffectiveConfig{
		Path:        absPath,
		Out:         out,
		ConfigFile:  cfgPath,
		Apply:       apply,
		Overwrite:   overwrite,
		Concurrency: concurrency,
		Formats:     formats,
		Bundle:      bundle,
		Tables:      tables,
		JPEGQuality: quality,
		ExcludeDirs: append([]string(nil), fc.ExcludeDirs...),
		NoCache:     noCache,
		Settings:    settings,
		Items:       append([]ItemEdit(nil), fc.Items...),
	}, nil
}

func parseFormats(raw []string) ([]domain.Format, error) {
	raw = splitList(raw)
	if len(raw) == 0 {
		return append([]domain.Format(nil), DefaultFormats...), nil
	}
	out := make([]domain.Format, 0, len(raw))
	seen := map[domain.Format]bool{}
	for _, s := range raw {
		if strings.EqualFold(s, "none") {
			return []domain.Format{}, nil
		}
		f, err := domain.ParseFormat(s)
		if err != nil {
			return nil, fmt.Errorf("formats：%w", err)
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func parseTables(raw []string) ([]domain.TableKind, error) {
	raw = splitList(raw)
	out := make([]domain.TableKind, 0, len(raw))
	seen := map[domain.TableKind]bool{}
	for _, s := range raw {
		k, err := domain.ParseTableKind(s)
		if err != nil {
			return nil, fmt.Errorf("tables：%w", err)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

// splitList 同时接受 ["png","svg"] 与 ["png,svg"] 两种写法。
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// findFileConfig 在 dir 下按 FileNames 顺序查找并解析配置文件。
func findFileConfig(dir string) (path string, fc FileConfig, exists bool, err error) {
	for _, name := range FileNames {
		path = filepath.Join(dir, name)
		fc, exists, err = readFileConfig(path)
		if err != nil || exists {
			return path, fc, exists, err
		}
	}
	return "", FileConfig{Settings: domain.DefaultSettings()}, false, nil
}

// readFileConfig 读取并解析配置文件：.json 按 JSONC（允许注释与尾逗号）解析，其余按 YAML。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	fc.Settings = domain.DefaultSettings()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fc, false, nil
		}
		return fc, false, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(jsonc.ToJSON(b), &fc)
	} else {
		err = yaml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, true, err
	}
	return fc, true, nil
}
