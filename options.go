package tomorrowland

// CallbackOption configures a single observer registration.
type CallbackOption func(*callbackConfig)

type callbackConfig struct {
	token          *InvalidationToken
	generation     uint64
	linkCancel     bool
	enforceContext bool
}

// WithToken gates the callback on the token: if the token is invalidated
// before the callback runs, the handler is not invoked, and for an outcome
// that would have run it the returned promise is cancelled instead. Tap and
// WhenCancelled are the exceptions: their returned promise still mirrors the
// source.
func WithToken(token *InvalidationToken) CallbackOption {
	return func(c *callbackConfig) { c.token = token }
}

// WithLinkCancel links the returned promise's cancellation to the source:
// requesting cancellation of the child immediately requests cancellation of
// the parent as well.
func WithLinkCancel() CallbackOption {
	return func(c *callbackConfig) { c.linkCancel = true }
}

// WithEnforceContext pins nested-promise adoption to the callback's context:
// when a handler returns a promise, the returned promise resolves on the
// callback context instead of wherever the nested promise resolved.
func WithEnforceContext() CallbackOption {
	return func(c *callbackConfig) { c.enforceContext = true }
}

func buildCallbackConfig(opts []CallbackOption) callbackConfig {
	var cfg callbackConfig
	for _, opt := range opts {
		if opt == nil {
			panic(Namespace + ": nil callback option")
		}
		opt(&cfg)
	}
	if cfg.token != nil {
		cfg.generation = cfg.token.snapshot()
	}
	return cfg
}

// gateOpen reports whether the user handler may run under the registered
// token generation.
func (c *callbackConfig) gateOpen() bool {
	return c.token == nil || c.token.isValid(c.generation)
}
