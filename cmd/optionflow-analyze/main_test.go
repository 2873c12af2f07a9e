package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"optionflow/internal/channel"
)

const sampleChain = `{"records":{"data":[
 {"strikePrice":22000,
  "CE":{"strikePrice":22000,"changeinOpenInterest":1200,"totalTradedVolume":250000},
  "PE":{"strikePrice":22000,"changeinOpenInterest":-300,"totalTradedVolume":90000}},
 {"strikePrice":22100,
  "CE":{"strikePrice":22100,"changeinOpenInterest":-800,"totalTradedVolume":120000},
  "PE":{"strikePrice":22100,"changeinOpenInterest":2500,"totalTradedVolume":180000}}]}}`

func writeFixtures(t *testing.T, chain string) (cfgPath, chainPath string) {
	t.Helper()
	t.Setenv("APP_ENV", "")
	t.Setenv("OPTIONFLOW_SYMBOL", "")
	t.Setenv("OPTIONFLOW_INTERVAL", "")

	dir := t.TempDir()
	cfgPath = filepath.Join(dir, "config.yml")
	cfg := "optionflow:\n  name: test\n  version: \"1\"\nsource:\n  nse:\n    symbols: [\"NIFTY\"]\n    interval: 30s\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	chainPath = filepath.Join(dir, "chain.json")
	if err := os.WriteFile(chainPath, []byte(chain), 0o600); err != nil {
		t.Fatalf("write chain: %v", err)
	}
	return cfgPath, chainPath
}

func TestRunPrintsTables(t *testing.T) {
	cfgPath, chainPath := writeFixtures(t, sampleChain)
	heatmapPath := filepath.Join(t.TempDir(), "heatmap.html")

	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", cfgPath, "-from", chainPath, "-symbol", "nifty", "-heatmap", heatmapPath}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"OPTION CHAIN NIFTY", "TOP CE BUYERS", "Final Market Direction"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}

	html, err := os.ReadFile(heatmapPath)
	if err != nil {
		t.Fatalf("heatmap not written: %v", err)
	}
	if !strings.Contains(string(html), "Option Strength Heatmap") {
		t.Fatal("heatmap file has unexpected content")
	}
}

func TestRunJSON(t *testing.T) {
	cfgPath, chainPath := writeFixtures(t, sampleChain)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-config", cfgPath, "-from", chainPath, "-json"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var msg channel.AnalysisMessage
	if err := json.Unmarshal(out.Bytes(), &msg); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if msg.Symbol != "NIFTY" || msg.Source != "replay" || msg.Unavailable {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Result.Support != 22100 || msg.Result.Resistance != 22000 {
		t.Fatalf("unexpected levels: %+v", msg.Result.Aggregates)
	}
}

func TestRunEmptyChainIsUnavailable(t *testing.T) {
	cfgPath, chainPath := writeFixtures(t, `{"records":{"data":[]}}`)
	heatmapPath := filepath.Join(t.TempDir(), "heatmap.html")

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-config", cfgPath, "-from", chainPath, "-heatmap", heatmapPath}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "data unavailable") {
		t.Fatalf("expected unavailable notice, got %q", out.String())
	}
	if _, err := os.Stat(heatmapPath); !os.IsNotExist(err) {
		t.Fatal("heatmap must not be written for an unavailable cycle")
	}
}

func TestRunErrors(t *testing.T) {
	cfgPath, _ := writeFixtures(t, sampleChain)

	cases := map[string][]string{
		"unknown flag":   {"-nope"},
		"missing config": {"-config", filepath.Join(t.TempDir(), "none.yml")},
		"missing chain":  {"-config", cfgPath, "-from", filepath.Join(t.TempDir(), "none.json")},
		"bad location":   {"-config", cfgPath, "-from", "s3://"},
	}
	for name, args := range cases {
		if err := run(context.Background(), args, &bytes.Buffer{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
