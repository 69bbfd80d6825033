package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestFeeSplitCommand(t *testing.T) {
	cmd := feesCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"split", "--amount", "1000", "--decimals", "6", "--tier", "20", "--protocol", "5"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	// 1000 * 20bps = 2, protocol share 5/20 of it
	for _, want := range []string{"fee      2\n", "protocol 0.5\n", "lp       1.5\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("missing %q in\n%s", want, out.String())
		}
	}
}

func TestFeeTiersCommand(t *testing.T) {
	cmd := feesCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"tiers"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "20            50") {
		t.Errorf("unexpected table\n%s", out.String())
	}
}
