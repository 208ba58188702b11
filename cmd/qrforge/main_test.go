package main

import (
	"reflect"
	"testing"

	"github.com/John-Robertt/qrforge/internal/domain"
)

func TestParseRunArgs(t *testing.T) {
	cli, err := parseRunArgs([]string{"in", "--format", "svg,png", "--bundle=png", "--table", "xlsx", "--table", "pdf", "--apply", "--caption", "Lot 7"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if cli.Path != "in" {
		t.Fatalf("path 不符合预期：%q", cli.Path)
	}
	if !cli.FormatsSet || !reflect.DeepEqual(cli.Formats, []string{"svg", "png"}) {
		t.Fatalf("formats 不符合预期：%+v", cli)
	}
	if !cli.BundleSet || cli.Bundle != "png" {
		t.Fatalf("bundle 不符合预期：%+v", cli)
	}
	if !cli.TablesSet || !reflect.DeepEqual(cli.Tables, []string{"xlsx", "pdf"}) {
		t.Fatalf("tables 不符合预期：%+v", cli.Tables)
	}
	if !cli.ApplySet || !cli.Apply || !cli.CaptionSet || cli.Caption != "Lot 7" {
		t.Fatalf("apply/caption 不符合预期：%+v", cli)
	}
	if cli.OutSet || cli.OverwriteSet || cli.ConcurrencySet {
		t.Fatalf("未给出的 flag 不应标记为已设置：%+v", cli)
	}
}

func TestParseRunArgs_ApplyFalseOverridesConfig(t *testing.T) {
	cli, err := parseRunArgs([]string{"--apply=false"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !cli.ApplySet || cli.Apply {
		t.Fatalf("--apply=false 应显式设置为 false：%+v", cli)
	}
}

func TestParseRunArgs_Errors(t *testing.T) {
	cases := [][]string{
		{"a", "b"},
		{"--unknown"},
		{"--concurrency", "x"},
	}
	for _, args := range cases {
		if _, err := parseRunArgs(args); err == nil {
			t.Fatalf("期望错误：args=%v", args)
		}
	}
}

func TestExitCode(t *testing.T) {
	if exitCode(domain.RunReport{}) != 0 {
		t.Fatalf("无失败时应返回 0")
	}
	if exitCode(domain.RunReport{Summary: domain.ReportSummary{DecodeFailed: 1}}) != 1 {
		t.Fatalf("解码失败时应返回 1")
	}
	if exitCode(domain.RunReport{Summary: domain.ReportSummary{ExportsFailed: 1}}) != 1 {
		t.Fatalf("导出失败时应返回 1")
	}
}
