package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	rebuild bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithRebuild forces a full index rebuild at startup before serving.
func WithRebuild(rebuild bool) Option {
	return func(a *application) {
		a.rebuild = rebuild
	}
}
