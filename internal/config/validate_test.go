package config

import "testing"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Crawl.StartURL = "https://example.com/"
	cfg.Crawl.WorkerCount = 20
	return cfg
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestValidateRejectsMissingStartURL(t *testing.T) {
	cfg := validConfig()
	cfg.Crawl.StartURL = ""
	if err := Validate(cfg); err == nil {
		t.Error("expected rejection of empty start_url")
	}
}

func TestValidateRejectsWorkerCountBelowControllerMax(t *testing.T) {
	cfg := validConfig()
	cfg.Crawl.WorkerCount = 5
	cfg.Controller.Max = 20
	if err := Validate(cfg); err == nil {
		t.Error("expected rejection when worker_count < controller.max")
	}
}

func TestValidateRejectsInitialOutsideBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Controller.Initial = 100
	if err := Validate(cfg); err == nil {
		t.Error("expected rejection of initial concurrency outside [min, max]")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Error("expected rejection of an unsupported log level")
	}
}

func TestValidateURLRejectsNonHTTPScheme(t *testing.T) {
	if err := ValidateURL("ftp://example.com/"); err == nil {
		t.Error("expected rejection of a non-http(s) scheme")
	}
}

func TestValidateURLRejectsMissingHost(t *testing.T) {
	if err := ValidateURL("https:///path"); err == nil {
		t.Error("expected rejection of a URL without a host")
	}
}
