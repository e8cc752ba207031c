// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package cmd

import (
	"strings"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "WINDOWS_TIMELINE"

// Config holds the options of a collection run.
type Config struct {
	Timezone       string `mapstructure:"timezone"`
	ExtractEvtx    string `mapstructure:"extract-evtx"`
	IgnoreCase     bool   `mapstructure:"ignore-case"`
	ParseMft       bool   `mapstructure:"parse-mft"`
	ListTimezones  bool   `mapstructure:"list-timezones"`
	Hayabusa       string `mapstructure:"execute-hayabusa"`
	OutputDir      string `mapstructure:"output-dir"`
	Verbose        bool   `mapstructure:"verbose"`
	Manifest       bool   `mapstructure:"manifest"`
	Archive        string `mapstructure:"archive"`
	NoUserTimeline bool   `mapstructure:"no-user-timeline"`
}

// DefaultConfig returns the values used for options that are set neither by
// flag, environment nor config file.
func DefaultConfig() Config {
	return Config{
		OutputDir: "output",
	}
}

// loadConfig merges flags, WINDOWS_TIMELINE_* environment variables and the
// optional config file, in this order of precedence.
func loadConfig(flags *pflag.FlagSet, configFile string) (Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, &ExitError{Code: ExitConfig, Message: "could not read config", Err: err}
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return Config{}, errors.Wrap(err, "could not bind flags")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, &ExitError{Code: ExitConfig, Message: "invalid config", Err: err}
	}
	if err := mergo.Merge(&config, DefaultConfig()); err != nil {
		return Config{}, errors.Wrap(err, "could not apply defaults")
	}
	return config, nil
}
