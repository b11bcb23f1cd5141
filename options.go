package statesync

import (
	"os"

	"github.com/colyseus/colyseus-unity-sdk-sub001/utils"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Options struct {
	LogLevel           string `yaml:"log_level"`
	HandshakeCacheSize int    `yaml:"handshake_cache_size"`
	// JournalDir enables frame journaling when set.
	JournalDir string `yaml:"journal_dir"`
	Endpoint   string `yaml:"endpoint"`
	Metrics    bool   `yaml:"metrics"`
	// SkipUnknownFields tolerates schema skew by skipping to the next
	// known structure; when false an unknown field index is fatal.
	SkipUnknownFields *bool `yaml:"skip_unknown_fields"`

	Logger utils.Logger `yaml:"-"`
}

func (o *Options) SetDefaults() {
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	if o.HandshakeCacheSize == 0 {
		o.HandshakeCacheSize = 16
	}
	if o.SkipUnknownFields == nil {
		skip := true
		o.SkipUnknownFields = &skip
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(utils.ParseLevel(o.LogLevel))
	}
}

func (o *Options) SkipUnknown() bool {
	return o.SkipUnknownFields == nil || *o.SkipUnknownFields
}

// LoadOptions reads a YAML options file. Unset keys keep their defaults.
func LoadOptions(path string) (opts Options, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrapf(err, "read options %s", path)
	}
	if err = yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "parse options %s", path)
	}
	opts.SetDefaults()
	return opts, nil
}
