package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesServiceDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/antiplagiat")

	cfg, err := Load(ServiceFileAnalysis)
	require.NoError(t, err)
	require.Equal(t, "File Analysis Service", cfg.AppName)
	require.Equal(t, ":8082", cfg.HTTPAddress())
	require.Equal(t, 5, cfg.Analysis.Workers)
	require.Equal(t, 10, cfg.Analysis.Burst)
	require.Equal(t, time.Second, cfg.Analysis.AdmitTimeout)
	require.Equal(t, 15*time.Minute, cfg.Analysis.StaleAfter)
	require.Equal(t, 3, cfg.Analysis.MetadataRetries)
	require.Equal(t, 30*time.Second, cfg.WordCloud.Timeout)
	require.Equal(t, CompareModePriorContent, cfg.Plagiarism.CompareMode)
}

func TestLoadReadsDownstreamURLs(t *testing.T) {
	t.Setenv("FILE_STORING_BASE_URL", "http://storing:9000/")
	t.Setenv("FILE_ANALYSIS_BASE_URL", "http://analysis:9001")
	t.Setenv("APP_PORT", ":7000")

	cfg, err := Load(ServiceGateway)
	require.NoError(t, err)
	require.Equal(t, "http://storing:9000", cfg.FileStoringBaseURL)
	require.Equal(t, "http://analysis:9001", cfg.FileAnalysisBaseURL)
	require.Equal(t, ":7000", cfg.HTTPAddress())
}

func TestLoadRequiresDatabaseForBackends(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load(ServiceFileStoring)
	require.Error(t, err)
}

func TestLoadRejectsUnknownCompareMode(t *testing.T) {
	t.Setenv("PLAGIARISM_COMPARE_MODE", "minhash")

	_, err := Load(ServiceGateway)
	require.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("WORDCLOUD_TIMEOUT", "soon")

	_, err := Load(ServiceGateway)
	require.Error(t, err)
}
