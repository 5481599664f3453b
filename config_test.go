package compressor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/afs"
	"github.com/viant/afs/file"

	"github.com/lambrk/compressor/internal/idgen"
)

func TestConfig_Validate(t *testing.T) {
	assert.Nil(t, DefaultConfig().Validate())

	config := DefaultConfig()
	config.MinWorkers = 0
	assert.NotNil(t, config.Validate())

	config = DefaultConfig()
	config.MaxWorkers = config.MinWorkers - 1
	assert.NotNil(t, config.Validate())

	config = DefaultConfig()
	config.Thresholds.CPUHigh = 120
	assert.NotNil(t, config.Validate())

	config = DefaultConfig()
	config.Thresholds.CPULow = 90
	assert.NotNil(t, config.Validate())

	config = DefaultConfig()
	config.SampleInterval = 0
	assert.NotNil(t, config.Validate())
}

func TestLoadConfig(t *testing.T) {
	URL := "mem://localhost/config/" + idgen.New() + "/compressor.yaml"
	document := `
minWorkers: 2
maxWorkers: 8
thresholds:
  cpuHigh: 75
  memoryHigh: 85
  cpuLow: 50
  memoryLow: 55
sampleInterval: 2s
cancelGracePeriod: 1m
failFast: true
`
	err := afs.New().Upload(context.Background(), URL, file.DefaultFileOsMode, strings.NewReader(document))
	assert.Nil(t, err)

	config, err := LoadConfig(context.Background(), URL)
	assert.Nil(t, err)
	assert.Equal(t, 2, config.MinWorkers)
	assert.Equal(t, 8, config.MaxWorkers)
	assert.Equal(t, 75.0, config.Thresholds.CPUHigh)
	assert.Equal(t, 2*time.Second, config.SampleInterval)
	assert.Equal(t, time.Minute, config.CancelGracePeriod)
	assert.True(t, config.FailFast)
	// Unset fields keep their defaults.
	assert.Equal(t, 256, config.EventBuffer)
}

func TestLoadConfig_Failures(t *testing.T) {
	_, err := LoadConfig(context.Background(), "mem://localhost/config/"+idgen.New()+"/missing.yaml")
	assert.NotNil(t, err)

	URL := "mem://localhost/config/" + idgen.New() + "/broken.yaml"
	err = afs.New().Upload(context.Background(), URL, file.DefaultFileOsMode, strings.NewReader("minWorkers: 0\n"))
	assert.Nil(t, err)
	_, err = LoadConfig(context.Background(), URL)
	assert.NotNil(t, err)
}
