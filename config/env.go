// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"os"
	"strings"

	"github.com/z5labs/httpsvc/config/key"
)

// Env represents a Source where its underlying values
// are extracted from environment variables.
type Env struct {
	prefix  string
	environ func() []string
}

// FromEnv returns a Source which applies every environment variable
// starting with prefix followed by an underscore. The remainder of
// the variable name is split on underscores into a key chain, e.g.
// HTTPSVC_STREAMING_CHUNKSIZE sets streaming.chunksize.
func FromEnv(prefix string) Env {
	return Env{
		prefix:  prefix,
		environ: os.Environ,
	}
}

// Apply implements the Source interface.
func (src Env) Apply(store Store) error {
	p := strings.ToUpper(src.prefix) + "_"
	for _, pair := range src.environ() {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || !strings.HasPrefix(strings.ToUpper(k), p) {
			continue
		}

		var chain key.Chain
		for _, part := range strings.Split(k[len(p):], "_") {
			if part == "" {
				continue
			}
			chain = append(chain, key.Name(strings.ToLower(part)))
		}
		if len(chain) == 0 {
			continue
		}

		err := store.Set(chain, v)
		if err != nil {
			return err
		}
	}
	return nil
}
