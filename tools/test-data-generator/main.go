package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Config describes the census-like table to write
type Config struct {
	Rows        int     `json:"rows"`
	Seed        int64   `json:"seed"`
	MissingRate float64 `json:"missing_rate"`
	OutputFile  string  `json:"output_file"`
	NullValue   string  `json:"null_value"`
}

// Generator writes private-looking test tables: a candidate key, a numeric age,
// an education level that depends on age, weekly hours that depend on education
// and an income class that depends on both.
type Generator struct {
	config *Config
	logger *logrus.Logger
	rand   *rand.Rand
}

var educationLevels = []string{"HS-grad", "Some-college", "Bachelors", "Masters", "Doctorate"}

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		rows       = flag.Int("rows", 1000, "Number of rows to generate")
		seed       = flag.Int64("seed", 1, "Random seed")
		missing    = flag.Float64("missing", 0.02, "Fraction of age and hours cells left empty")
		output     = flag.String("output", "test_data.csv", "Output CSV file")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var config *Config
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config = getDefaultConfig()
		config.Rows = *rows
		config.Seed = *seed
		config.MissingRate = *missing
		config.OutputFile = *output
	}

	generator, err := NewGenerator(config, logger)
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"rows":         config.Rows,
		"seed":         config.Seed,
		"missing_rate": config.MissingRate,
		"output_file":  config.OutputFile,
	}).Info("Starting test data generation")

	table := generator.Generate()

	ctx := context.Background()
	if err := dataset.WriteCSVFile(ctx, config.OutputFile, table, dataset.WriteOptions{NullValue: config.NullValue}); err != nil {
		log.Fatalf("Failed to save data: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"rows":        table.NumRows(),
		"output_file": config.OutputFile,
	}).Info("Test data generation completed")
}

func NewGenerator(config *Config, logger *logrus.Logger) (*Generator, error) {
	if config.Rows <= 0 {
		return nil, fmt.Errorf("rows must be positive, got %d", config.Rows)
	}
	if config.MissingRate < 0 || config.MissingRate >= 1 {
		return nil, fmt.Errorf("missing rate must be in [0, 1), got %v", config.MissingRate)
	}
	return &Generator{
		config: config,
		logger: logger,
		rand:   rand.New(rand.NewSource(config.Seed)),
	}, nil
}

// Generate builds the table column by column from row-wise draws
func (g *Generator) Generate() *models.Table {
	n := g.config.Rows
	ids := make([]models.Value, n)
	ages := make([]models.Value, n)
	education := make([]models.Value, n)
	hours := make([]models.Value, n)
	income := make([]models.Value, n)

	for i := 0; i < n; i++ {
		age := g.age()
		level := g.education(age)
		h := g.hours(level)

		ids[i] = models.StringValue(fmt.Sprintf("p%06d", i+1))
		ages[i] = g.maybeMissing(strconv.Itoa(age))
		education[i] = models.StringValue(educationLevels[level])
		hours[i] = g.maybeMissing(strconv.Itoa(h))
		income[i] = models.StringValue(g.income(age, level))
	}

	g.logger.WithField("rows", n).Debug("Rows drawn")

	return &models.Table{Columns: []models.Column{
		{Name: "id", DataType: models.DataTypeString, Values: ids},
		{Name: "age", DataType: models.DataTypeInteger, Values: ages},
		{Name: "education", DataType: models.DataTypeString, Values: education},
		{Name: "hours_per_week", DataType: models.DataTypeInteger, Values: hours},
		{Name: "income", DataType: models.DataTypeString, Values: income},
	}}
}

func (g *Generator) age() int {
	a := int(math.Round(g.rand.NormFloat64()*13 + 40))
	return clamp(a, 17, 90)
}

// education shifts towards higher levels with age, capped by the last level
func (g *Generator) education(age int) int {
	level := 0
	p := 0.35 + float64(age-17)/200
	for level < len(educationLevels)-1 && g.rand.Float64() < p {
		level++
		p *= 0.7
	}
	return level
}

func (g *Generator) hours(level int) int {
	h := int(math.Round(g.rand.NormFloat64()*6 + 36 + 2*float64(level)))
	return clamp(h, 1, 99)
}

func (g *Generator) income(age, level int) string {
	p := 0.05 + 0.12*float64(level) + 0.004*float64(age-17)
	if g.rand.Float64() < p {
		return ">50K"
	}
	return "<=50K"
}

func (g *Generator) maybeMissing(raw string) models.Value {
	if g.rand.Float64() < g.config.MissingRate {
		return models.NullValue()
	}
	return models.StringValue(raw)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func loadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config := getDefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Rows:        1000,
		Seed:        1,
		MissingRate: 0.02,
		OutputFile:  "test_data.csv",
	}
}
