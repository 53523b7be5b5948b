package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestConfigShowRedactsSecrets(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	initViperDefaults()
	viper.Set("telegram.bot_token", "123:SECRET")
	viper.Set("llm.api_key", "sk-SECRET")

	cmd := newConfigShowCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("config show error = %v", err)
	}

	got := out.String()
	if strings.Contains(got, "SECRET") {
		t.Fatalf("secrets leaked into output:\n%s", got)
	}
	if !strings.Contains(got, "[redacted]") {
		t.Fatalf("expected redaction markers in output:\n%s", got)
	}
	if !strings.Contains(got, "gpt-4o") {
		t.Fatalf("expected defaults in output:\n%s", got)
	}
}
