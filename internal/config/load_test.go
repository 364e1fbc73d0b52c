package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadBasicConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
destination_path: out
id: test-pipeline
tools:
  fastqc:
    path: /usr/bin/fastqc
    get_version: --version
    exit_code: 0
steps:
  source (fastq_source):
    _tools: []
  align (bowtie2):
    _depends: [source]
    _cores: 4
    index: ref.idx
`)

	m, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "test-pipeline", m.ID)
	require.Equal(t, filepath.Join(dir, "out"), m.DestinationPath)

	require.Contains(t, m.Tools, "fastqc")
	require.Equal(t, []string{"/usr/bin/fastqc"}, m.Tools["fastqc"].Path)
	require.Equal(t, []string{"--version"}, m.Tools["fastqc"].GetVersion)

	require.Contains(t, m.Steps, "source")
	require.Equal(t, "fastq_source", m.Steps["source"].ModuleClass)

	require.Contains(t, m.Steps, "align")
	align := m.Steps["align"]
	require.Equal(t, "bowtie2", align.ModuleClass)
	require.Equal(t, []string{"source"}, align.DependsOn)
	require.Equal(t, 4, align.CoresHint)
	require.Equal(t, "ref.idx", align.Options["index"])
}

func TestLoadRejectsUnknownTopLevelKey(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
destination_path: out
bogus_key: 1
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus_key")
}

func TestLoadRejectsReservedStepName(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
destination_path: out
steps:
  temp:
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "reserved")
}

func TestLoadClusterCommandTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
SLURM:
  identity_test: ["printf", "SLURM"]
  identity_answer: ["SLURM"]
  stat: ["squeue", "-j", "%s"]
  submit: ["sbatch", "%s"]
  default_options: "--time=01:00:00"
`), 0o644))

	table, err := LoadClusterCommandTable(path)
	require.NoError(t, err)
	require.Contains(t, table, "SLURM")
	require.Equal(t, []string{"printf", "SLURM"}, table["SLURM"].IdentityTest)
}

func TestSelectClusterTypeAuto(t *testing.T) {
	table := map[string]ClusterCommands{
		"SLURM": {
			IdentityTest:   []string{"printf", "SLURM"},
			IdentityAnswer: []string{"SLURM"},
		},
	}
	got, err := SelectClusterType("auto", table, func(argv []string) (string, error) {
		return "SLURM", nil
	})
	require.NoError(t, err)
	require.Equal(t, "SLURM", got)
}
