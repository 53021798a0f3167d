package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soilbiogeo/nifpipe/internal/cli"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func setupData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, "world.csv", `long,lat,group
-10,40,1
10,40,1
10,60,1
-10,60,1
`)
	writeFixture(t, dir, "map.csv", `Longitude,Latitude,Type
5,45,Cropland
0,50,Grassland
`)
	writeFixture(t, dir, "boxplot.csv", `groupID,NF
Cropland,1.0
Cropland,1.4
Grassland,2.2
Grassland,2.5
`)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "nifpipe") {
		t.Errorf("version output should contain 'nifpipe', got: %s", out)
	}
}

func TestRunSelectedStages(t *testing.T) {
	data := setupData(t)
	outDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.db")

	out, err := execute(t,
		"run", "--select", "sitemap,distribution",
		"--data-dir", data, "--out-dir", outDir, "--state", statePath,
		"-o", "text")
	if err != nil {
		t.Fatalf("run command error = %v\noutput:\n%s", err, out)
	}

	for _, artifact := range []string{"map_clean.pdf", "box_new.pdf"} {
		if _, err := os.Stat(filepath.Join(outDir, artifact)); err != nil {
			t.Errorf("artifact %s missing: %v", artifact, err)
		}
	}
	if !strings.Contains(out, "sitemap") || !strings.Contains(out, "success") {
		t.Errorf("run output missing stage results:\n%s", out)
	}
}

func TestRunFailureSkipsRemaining(t *testing.T) {
	data := setupData(t) // no Sand.csv, so regression fails
	outDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.db")

	out, err := execute(t,
		"run", "--select", "distribution,regression,importance",
		"--data-dir", data, "--out-dir", outDir, "--state", statePath,
		"-o", "text")
	if err == nil {
		t.Fatal("run should fail when an input file is missing")
	}
	if !strings.Contains(out, "skipped") {
		t.Errorf("later stages should be skipped:\n%s", out)
	}
	// The earlier stage's artifact stays on disk.
	if _, statErr := os.Stat(filepath.Join(outDir, "box_new.pdf")); statErr != nil {
		t.Errorf("distribution artifact missing after downstream failure: %v", statErr)
	}
}

func TestRunsCommandListsHistory(t *testing.T) {
	data := setupData(t)
	outDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.db")

	if _, err := execute(t,
		"run", "--select", "sitemap",
		"--data-dir", data, "--out-dir", outDir, "--state", statePath); err != nil {
		t.Fatalf("run command error = %v", err)
	}

	out, err := execute(t, "runs", "--state", statePath, "-o", "text")
	if err != nil {
		t.Fatalf("runs command error = %v", err)
	}
	if !strings.Contains(out, "success") {
		t.Errorf("runs listing should show the recorded run:\n%s", out)
	}
}

func TestRunUnknownStage(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.db")
	_, err := execute(t,
		"run", "--select", "nope",
		"--data-dir", t.TempDir(), "--state", statePath)
	if err == nil {
		t.Fatal("unknown stage name should error")
	}
}

func TestJSONOutputMode(t *testing.T) {
	data := setupData(t)
	outDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.db")

	out, err := execute(t,
		"run", "--select", "sitemap",
		"--data-dir", data, "--out-dir", outDir, "--state", statePath,
		"-o", "json")
	if err != nil {
		t.Fatalf("run command error = %v", err)
	}
	if !strings.Contains(out, `"Stage"`) && !strings.Contains(out, `"sitemap"`) {
		t.Errorf("JSON output missing stage results:\n%s", out)
	}
}
