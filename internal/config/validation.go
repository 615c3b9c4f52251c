package config

import (
	"net/url"

	"git.home.luguber.info/inful/wikiexport/internal/foundation/errors"
)

// Validate checks the configuration for problems that would abort every corpus.
func Validate(cfg *Config) error {
	if len(cfg.Corpora) == 0 {
		return errors.ValidationError("at least one corpus must be configured").Build()
	}
	if len(cfg.Gateway.Endpoints) == 0 {
		return errors.ValidationError("gateway.endpoints must not be empty").Build()
	}
	for _, ep := range cfg.Gateway.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.ValidationError("gateway endpoint is not an absolute URL").
				WithContext("endpoint", ep).Build()
		}
	}
	if _, err := retryBackoffNormalizer.NormalizeWithError("retry mode", string(cfg.Gateway.Retry.Mode)); err != nil {
		return err
	}
	if cfg.Site.Host == "" {
		return errors.ValidationError("site.host must be set").Build()
	}
	seenSpace := make(map[string]bool, len(cfg.Corpora))
	seenDir := make(map[string]bool, len(cfg.Corpora))
	for _, c := range cfg.Corpora {
		if c.Space == "" {
			return errors.ValidationError("corpus space key must be set").Build()
		}
		if seenSpace[c.Space] {
			return errors.ValidationError("duplicate corpus space").WithContext("space", c.Space).Build()
		}
		seenSpace[c.Space] = true
		if seenDir[c.Dir] {
			return errors.ValidationError("corpora must not share an output directory").
				WithContext("dir", c.Dir).Build()
		}
		seenDir[c.Dir] = true
	}
	if cfg.MaxParallel < 0 {
		return errors.ValidationError("max_parallel cannot be negative").Build()
	}
	return nil
}
