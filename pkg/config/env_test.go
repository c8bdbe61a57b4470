package config

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	os.Unsetenv("GATEWAY_TEST_FOO")
	if got := GetEnv("GATEWAY_TEST_FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	os.Setenv("GATEWAY_TEST_FOO", "baz")
	defer os.Unsetenv("GATEWAY_TEST_FOO")
	if got := GetEnv("GATEWAY_TEST_FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	os.Unsetenv("GATEWAY_TEST_NUM")
	if got := GetEnvInt("GATEWAY_TEST_NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	os.Setenv("GATEWAY_TEST_NUM", "100")
	defer os.Unsetenv("GATEWAY_TEST_NUM")
	if got := GetEnvInt("GATEWAY_TEST_NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	os.Setenv("GATEWAY_TEST_NUM", "notint")
	if got := GetEnvInt("GATEWAY_TEST_NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	os.Unsetenv("GATEWAY_TEST_FLAG")
	if got := GetEnvBool("GATEWAY_TEST_FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	os.Setenv("GATEWAY_TEST_FLAG", "false")
	defer os.Unsetenv("GATEWAY_TEST_FLAG")
	if got := GetEnvBool("GATEWAY_TEST_FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	defer os.Unsetenv("LOG_LEVEL")

	os.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatal("expected debug level")
	}
	os.Setenv("LOG_LEVEL", "warn")
	if GetLogLevel() != logrus.WarnLevel {
		t.Fatal("expected warn level")
	}
	os.Setenv("LOG_LEVEL", "error")
	if GetLogLevel() != logrus.ErrorLevel {
		t.Fatal("expected error level")
	}
	os.Unsetenv("LOG_LEVEL")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatal("expected info level by default")
	}
}

func TestRequireEnvReturnsValue(t *testing.T) {
	os.Setenv("GATEWAY_TEST_REQUIRED", "present")
	defer os.Unsetenv("GATEWAY_TEST_REQUIRED")

	if got := RequireEnv("GATEWAY_TEST_REQUIRED"); got != "present" {
		t.Fatalf("expected present, got %s", got)
	}
}

func TestLoadWithNoFilesPresent(t *testing.T) {
	// Should not panic; just log a debug line when no .env files exist.
	Load(logrus.New())
}
