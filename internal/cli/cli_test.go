package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseDay(t *testing.T) {
	got, err := parseDay("2024-03-01")
	if err != nil {
		t.Fatalf("日期解析失败: %v", err)
	}
	if !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
	if _, err := parseDay("2024-03-01T10:00:00Z"); err != nil {
		t.Fatalf("RFC3339 应被接受: %v", err)
	}
	if _, err := parseDay("01/03/2024"); err == nil {
		t.Fatal("非法日期应报错")
	}
}

func TestVersionCommandSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/does/not/exist.yaml"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version 不应加载配置: %v", err)
	}
	if !strings.Contains(out.String(), "version: ") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "train", "predict", "symbols", "inspect", "show", "export", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %s not registered", name)
		}
	}
}
