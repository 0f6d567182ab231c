package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

)

func TestGenerate(t *testing.T) {
	config := getDefaultConfig()
	config.Rows = 500
	config.MissingRate = 0.1

	generator, err := NewGenerator(config, logrus.New())
	require.NoError(t, err)

	table := generator.Generate()
	require.NoError(t, table.Validate())
	assert.Equal(t, 500, table.NumRows())
	assert.Equal(t, []string{"id", "age", "education", "hours_per_week", "income"}, table.Names())

	ids, _ := table.Column("id")
	seen := make(map[string]bool)
	for _, v := range ids.Values {
		assert.False(t, seen[v.Raw])
		seen[v.Raw] = true
	}

	ages, _ := table.Column("age")
	assert.Greater(t, ages.NullCount(), 0)
	income, _ := table.Column("income")
	assert.Zero(t, income.NullCount())

	again, err := NewGenerator(config, logrus.New())
	require.NoError(t, err)
	assert.Equal(t, table, again.Generate())
}

func TestNewGeneratorRejectsBadConfig(t *testing.T) {
	_, err := NewGenerator(&Config{Rows: 0}, logrus.New())
	assert.Error(t, err)

	_, err = NewGenerator(&Config{Rows: 10, MissingRate: 1}, logrus.New())
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rows": 25, "seed": 9}`), 0644))

	config, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 25, config.Rows)
	assert.Equal(t, int64(9), config.Seed)
	assert.Equal(t, "test_data.csv", config.OutputFile)
}

