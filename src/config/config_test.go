package config

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := NewDefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if c.FeedbackThreshold != 0.5 || c.LocalWeight != 0.5 || c.MutationProbability != 0.1 {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero weight":    func(c *Config) { c.LocalWeight = 0 },
		"weight above 1": func(c *Config) { c.LocalWeight = 1.5 },
		"probability":    func(c *Config) { c.MutationProbability = 2 },
		"inverted range": func(c *Config) { c.MutationMin, c.MutationMax = 1.1, 0.9 },
		"empty range":    func(c *Config) { c.MutationMin, c.MutationMax = 1, 1 },
		"window":         func(c *Config) { c.SmoothingWindow = 0 },
		"fallback":       func(c *Config) { c.Fallback = "coin" },
		"transport":      func(c *Config) { c.Transport = "carrier-pigeon" },
		"directory":      func(c *Config) { c.Directory = "etcd" },
		"negative sleep": func(c *Config) { c.Sleep = -1 },
		"no spore topic": func(c *Config) { c.SporeTopic = "" },
	}

	for name, mutate := range cases {
		c := NewDefaultConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: config should be invalid", name)
		}
	}
}

func TestSetDataDir(t *testing.T) {
	c := NewDefaultConfig()
	dir := t.TempDir()
	c.SetDataDir(dir)

	if c.DatabaseDir != filepath.Join(dir, DefaultBadgerFile) {
		t.Fatalf("badger dir should follow datadir, got %s", c.DatabaseDir)
	}
	if c.SQLitePath != filepath.Join(dir, DefaultSQLiteFile) {
		t.Fatalf("sqlite path should follow datadir, got %s", c.SQLitePath)
	}

	c.Directory = "sqlite"
	if c.DirectoryPath() != c.SQLitePath {
		t.Fatalf("sqlite backend should use the sqlite path")
	}

	c = NewDefaultConfig()
	c.DatabaseDir = "/elsewhere"
	c.SetDataDir(dir)
	if c.DatabaseDir != "/elsewhere" {
		t.Fatalf("explicit badger dir should be kept")
	}
}

func TestLogLevel(t *testing.T) {
	if LogLevel("warn") != logrus.WarnLevel {
		t.Fatalf("warn should parse")
	}
	if LogLevel("chatty") != logrus.DebugLevel {
		t.Fatalf("unknown levels default to debug")
	}
}
