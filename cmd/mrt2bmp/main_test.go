package main

import "testing"

func TestParseArgs(t *testing.T) {
	var opts options
	help, err := parseArgs([]string{"-c", "cfg.yml", "--rv", "route-views2"}, &opts)
	if err != nil || help {
		t.Fatalf("help=%v err=%v", help, err)
	}
	if opts.configPath != "cfg.yml" || opts.routeviews != "route-views2" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseArgs_LongForms(t *testing.T) {
	var opts options
	if _, err := parseArgs([]string{"--config", "c", "--ripe", "rrc00"}, &opts); err != nil {
		t.Fatal(err)
	}
	if opts.configPath != "c" || opts.ripe != "rrc00" {
		t.Errorf("opts = %+v", opts)
	}

	opts = options{}
	if _, err := parseArgs([]string{"--router", "local1"}, &opts); err != nil {
		t.Fatal(err)
	}
	if opts.local != "local1" {
		t.Errorf("opts = %+v", opts)
	}
}

func TestParseArgs_Help(t *testing.T) {
	var opts options
	help, err := parseArgs([]string{"-h"}, &opts)
	if err != nil || !help {
		t.Fatalf("help=%v err=%v", help, err)
	}
}

func TestParseArgs_UnknownOption(t *testing.T) {
	var opts options
	if _, err := parseArgs([]string{"--bogus"}, &opts); err == nil {
		t.Fatal("expected error for unknown option")
	}
}

func TestParseArgs_MissingValue(t *testing.T) {
	var opts options
	if _, err := parseArgs([]string{"--rv"}, &opts); err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestRun_ExitCodes(t *testing.T) {
	if code := run([]string{"--bogus"}); code != exitUsage {
		t.Errorf("unknown option exit = %d", code)
	}
	if code := run([]string{"-h"}); code != exitOK {
		t.Errorf("help exit = %d", code)
	}
	// no mode selected
	if code := run(nil); code != exitConfig {
		t.Errorf("missing mode exit = %d", code)
	}
	// mode selected but the config file cannot be loaded
	if code := run([]string{"-r", "local1", "-c", "/nonexistent/config.yml"}); code != exitConfig {
		t.Errorf("bad config exit = %d", code)
	}
}
